package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/kvstore"
)

// KeySession is where a client remembers who is signed in across restarts.
const KeySession = "auth_session"

type persistedSession struct {
	UID      string `json:"uid"`
	Provider string `json:"provider"`
}

type delivery struct {
	subscriber int
	identity   *Identity
}

// Client is one browser's connection to the platform. Session changes are
// delivered to subscribers by a single goroutine, one at a time and in order.
type Client struct {
	platform *Platform
	store    kvstore.Store
	logger   *zap.Logger

	mu          sync.Mutex
	current     *Identity
	subscribers map[int]func(*Identity)
	nextID      int
	queue       []delivery
	closed      bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient restores the signed-in account remembered in store, if any, and
// starts the delivery goroutine. Close stops it.
func NewClient(ctx context.Context, platform *Platform, store kvstore.Store, logger *zap.Logger) (*Client, error) {
	c := &Client{
		platform:    platform,
		store:       store,
		logger:      logger,
		subscribers: make(map[int]func(*Identity)),
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}

	var saved persistedSession
	err := kvstore.GetJSON(ctx, store, KeySession, &saved)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("restore identity session: %w", err)
	default:
		id, err := platform.Resume(ctx, saved.UID, saved.Provider)
		if errors.Is(err, ErrAccountNotFound) {
			logger.Warn("dropping session of unknown account", zap.String("uid", saved.UID))
			if err := store.Delete(ctx, KeySession); err != nil {
				return nil, fmt.Errorf("drop identity session: %w", err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("restore identity session: %w", err)
		} else {
			c.current = id
		}
	}

	c.wg.Add(1)
	go c.dispatch()
	return c, nil
}

// Subscribe registers fn for session changes. fn is first called with the
// current state, then after every change, until the returned func is called.
func (c *Client) Subscribe(fn func(*Identity)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subscribers[id] = fn
	c.enqueueLocked(delivery{subscriber: id, identity: c.current.clone()})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
}

// SignIn exchanges cred for an identity and makes it the current one. On
// failure the current session is left as it was.
func (c *Client) SignIn(ctx context.Context, cred Credential) (*Identity, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	id, err := c.platform.SignIn(ctx, cred)
	if err != nil {
		return nil, err
	}
	if err := c.remember(ctx, id); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = id
	c.broadcastLocked()
	return id.clone(), nil
}

func (c *Client) SignOut(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	if err := c.store.Delete(ctx, KeySession); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return fmt.Errorf("forget identity session: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.broadcastLocked()
	return nil
}

// Link attaches cred to current, which must be the signed-in account. The
// account stays signed in, so no session change is delivered.
func (c *Client) Link(ctx context.Context, current *Identity, cred Credential) (*Identity, error) {
	c.mu.Lock()
	signedIn := c.current != nil && current != nil && c.current.UID == current.UID
	c.mu.Unlock()
	if !signedIn {
		return nil, ErrNotSignedIn
	}

	id, err := c.platform.Link(ctx, current.UID, cred)
	if err != nil {
		return nil, err
	}
	id.Provider = current.Provider

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = id
	return id.clone(), nil
}

// Current returns the signed-in identity or nil.
func (c *Client) Current() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.clone()
}

// Close stops deliveries and waits for one in progress to return.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) remember(ctx context.Context, id *Identity) error {
	if err := kvstore.SetJSON(ctx, c.store, KeySession, persistedSession{UID: id.UID, Provider: id.Provider}); err != nil {
		return fmt.Errorf("remember identity session: %w", err)
	}
	return nil
}

func (c *Client) broadcastLocked() {
	for id := range c.subscribers {
		c.enqueueLocked(delivery{subscriber: id, identity: c.current.clone()})
	}
}

func (c *Client) enqueueLocked(d delivery) {
	if c.closed {
		return
	}
	c.queue = append(c.queue, d)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			if len(c.queue) == 0 || c.closed {
				c.mu.Unlock()
				break
			}
			d := c.queue[0]
			c.queue = c.queue[1:]
			fn, ok := c.subscribers[d.subscriber]
			c.mu.Unlock()

			if ok {
				fn(d.identity)
			}
		}
	}
}
