// Package profile keeps the durable user profile in step with the signed-in
// identity and resolves the user's role from it.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/docstore"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/identity"
)

const (
	usersCollection    = "users"
	countersCollection = "counters"
)

var ErrQuotaExceeded = errors.New("registration quota exceeded")

type counter struct {
	Count int `bson:"count"`
}

func counterID(provider string) string {
	return provider + "_registrations"
}

type Reconciler struct {
	store  docstore.Store
	quotas map[string]int
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciler builds a reconciler over store. quotas caps the number of
// profiles that may be registered through a provider; providers without an
// entry are unlimited.
func NewReconciler(store docstore.Store, quotas map[string]int, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		quotas: quotas,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EnsureProfile returns the role recorded for id, creating a standard profile
// the first time id is seen. The returned role is RoleUnknown on error.
func (r *Reconciler) EnsureProfile(ctx context.Context, id *identity.Identity) (domain.Role, error) {
	existing, err := r.Get(ctx, id.UID)
	if err == nil {
		return existing.Role, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		r.logger.Error("profile lookup failed", zap.String("uid", id.UID), zap.Error(err))
		return domain.RoleUnknown, err
	}

	created, err := r.create(ctx, id)
	if err != nil {
		r.logger.Error("profile creation failed", zap.String("uid", id.UID), zap.Error(err))
		return domain.RoleUnknown, err
	}
	return created.Role, nil
}

// Get reads and validates the profile of uid.
func (r *Reconciler) Get(ctx context.Context, uid string) (*domain.UserProfile, error) {
	snap, err := r.store.Get(ctx, usersCollection, uid)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", uid, err)
	}
	return decode(snap, uid)
}

func decode(snap *docstore.Snapshot, uid string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	if err := snap.Decode(&p); err != nil {
		return nil, err
	}
	p.UID = uid
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Reconciler) create(ctx context.Context, id *identity.Identity) (*domain.UserProfile, error) {
	p := &domain.UserProfile{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
		Role:        domain.RoleStandard,
		Provider:    id.Provider,
		CreatedAt:   r.now(),
	}

	limit, guarded := r.quotas[id.Provider]
	if !guarded {
		if err := r.store.Set(ctx, usersCollection, id.UID, p); err != nil {
			return nil, fmt.Errorf("create profile %s: %w", id.UID, err)
		}
		r.logger.Info("profile created", zap.String("uid", id.UID))
		return p, nil
	}

	var result *domain.UserProfile
	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		// another session may have registered this uid since the first read
		snap, err := tx.Get(ctx, usersCollection, id.UID)
		if err != nil {
			return err
		}
		if snap.Exists() {
			result, err = decode(snap, id.UID)
			return err
		}

		if err := reserve(ctx, tx, id.Provider, limit); err != nil {
			return err
		}
		if err := tx.Set(ctx, usersCollection, id.UID, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create profile %s: %w", id.UID, err)
	}
	r.logger.Info("profile created", zap.String("uid", id.UID), zap.String("provider", id.Provider))
	return result, nil
}

// reserve takes one registration slot for provider or fails with
// ErrQuotaExceeded, aborting the surrounding transaction.
func reserve(ctx context.Context, tx docstore.Tx, provider string, limit int) error {
	snap, err := tx.Get(ctx, countersCollection, counterID(provider))
	if err != nil {
		return err
	}
	var c counter
	if snap.Exists() {
		if err := snap.Decode(&c); err != nil {
			return err
		}
	}
	if c.Count >= limit {
		return fmt.Errorf("%w: %s has %d of %d", ErrQuotaExceeded, provider, c.Count, limit)
	}
	c.Count++
	return tx.Set(ctx, countersCollection, counterID(provider), c, docstore.Merge())
}

// Registrations reports how many quota slots provider has used.
func (r *Reconciler) Registrations(ctx context.Context, provider string) (int, error) {
	snap, err := r.store.Get(ctx, countersCollection, counterID(provider))
	if err != nil {
		return 0, err
	}
	var c counter
	if err := snap.Decode(&c); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return c.Count, nil
}
