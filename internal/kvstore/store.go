// Package kvstore is the per-client persistent key-value store. It plays the
// role browser local storage plays for a single-page app: small JSON blobs
// under well-known keys, rewritten in full on every change.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known keys.
const (
	KeyCart       = "cart"
	KeyUserCache  = "user_cache"
	KeyUserAvatar = "user_avatar"
	KeyTheme      = "theme"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type scoped struct {
	store  Store
	prefix string
}

// Scope returns a view of s where every key is namespaced to one client.
func Scope(s Store, clientID string) Store {
	return &scoped{store: s, prefix: fmt.Sprintf("client:%s:", clientID)}
}

func (s *scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.store.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key string, value []byte) error {
	return s.store.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, s.prefix+key)
}

// GetJSON decodes the value under key into v. It returns ErrNotFound when the
// key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s failed: %w", key, err)
	}
	return nil
}

func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
