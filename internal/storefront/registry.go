// Package storefront owns the state of every connected client: its cart,
// session, theme preference and identity provider connection.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/kvstore"
	"github.com/fjod/storefront/internal/session"
)

var (
	ErrInvalidClientID = errors.New("invalid client id")
	ErrRegistryClosed  = errors.New("registry closed")
)

const defaultOpenTimeout = 10 * time.Second

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

type Deps struct {
	Store          kvstore.Store
	Platform       *identity.Platform
	Reconciler     session.Reconciler
	SessionOptions session.Options
	// OpenTimeout bounds the rehydration of one client. Zero means 10s.
	OpenTimeout time.Duration
	Logger      *zap.Logger
}

type Registry struct {
	deps Deps

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
	sfg     singleflight.Group // one rehydration per client id
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, clients: make(map[string]*Client)}
}

// Get returns the state of clientID, rehydrating it from the store on first
// use.
func (r *Registry) Get(ctx context.Context, clientID string) (*Client, error) {
	if !clientIDPattern.MatchString(clientID) {
		return nil, ErrInvalidClientID
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	c, ok := r.clients[clientID]
	r.mu.Unlock()
	if ok {
		return c, nil
	}

	v, err, _ := r.sfg.Do(clientID, func() (interface{}, error) {
		r.mu.Lock()
		c, ok := r.clients[clientID]
		r.mu.Unlock()
		if ok {
			return c, nil
		}

		// every concurrent Get for this id waits on this call, so it
		// does not end with the first caller's request
		openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.openTimeout())
		defer cancel()

		c, err := r.open(openCtx, clientID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			c.close()
			return nil, ErrRegistryClosed
		}
		r.clients[clientID] = c
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

func (r *Registry) open(ctx context.Context, clientID string) (*Client, error) {
	logger := r.deps.Logger.With(zap.String("client_id", clientID))
	store := kvstore.Scope(r.deps.Store, clientID)

	agg, err := cart.Load(ctx, store)
	if errors.Is(err, domain.ErrMalformedRecord) {
		// the next mutation overwrites the bad payload
		logger.Warn("ignoring unreadable cart", zap.Error(err))
		agg = cart.New(store)
	} else if err != nil {
		return nil, fmt.Errorf("open client %s: %w", clientID, err)
	}
	sess, err := session.Open(ctx, store, r.deps.Reconciler, logger, r.deps.SessionOptions)
	if err != nil {
		return nil, fmt.Errorf("open client %s: %w", clientID, err)
	}
	idc, err := identity.NewClient(ctx, r.deps.Platform, store, logger)
	if err != nil {
		return nil, fmt.Errorf("open client %s: %w", clientID, err)
	}
	sess.Attach(idc)

	logger.Debug("client opened", zap.Int("cart_lines", agg.Len()), zap.String("session", string(sess.State())))
	return &Client{ID: clientID, Cart: agg, Session: sess, identity: idc, store: store}, nil
}

func (r *Registry) openTimeout() time.Duration {
	if r.deps.OpenTimeout > 0 {
		return r.deps.OpenTimeout
	}
	return defaultOpenTimeout
}

// Len is the number of clients currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close stops every client's feed. Get fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	r.deps.Logger.Info("client registry closed", zap.Int("clients", len(clients)))
}
