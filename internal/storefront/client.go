package storefront

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/kvstore"
	"github.com/fjod/storefront/internal/session"
)

const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

type Client struct {
	ID      string
	Cart    *cart.Aggregate
	Session *session.Session

	identity *identity.Client
	store    kvstore.Store
	themeMu  sync.Mutex
}

// Theme is dark unless light was chosen explicitly.
func (c *Client) Theme(ctx context.Context) (string, error) {
	c.themeMu.Lock()
	defer c.themeMu.Unlock()
	return c.themeLocked(ctx)
}

func (c *Client) themeLocked(ctx context.Context) (string, error) {
	v, err := c.store.Get(ctx, kvstore.KeyTheme)
	if errors.Is(err, kvstore.ErrNotFound) {
		return ThemeDark, nil
	}
	if err != nil {
		return "", fmt.Errorf("read theme: %w", err)
	}
	if string(v) == ThemeLight {
		return ThemeLight, nil
	}
	return ThemeDark, nil
}

func (c *Client) ToggleTheme(ctx context.Context) (string, error) {
	c.themeMu.Lock()
	defer c.themeMu.Unlock()

	current, err := c.themeLocked(ctx)
	if err != nil {
		return "", err
	}
	next := ThemeLight
	if current == ThemeLight {
		next = ThemeDark
	}
	if err := c.store.Set(ctx, kvstore.KeyTheme, []byte(next)); err != nil {
		return "", fmt.Errorf("write theme: %w", err)
	}
	return next, nil
}

func (c *Client) close() {
	c.Session.Close()
	c.identity.Close()
}
