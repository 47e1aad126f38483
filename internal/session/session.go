// Package session keeps a client's view of who is signed in. A cached
// snapshot from the client's store answers reads until the identity feed
// delivers the live state, after which the live state is authoritative.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/kvstore"
	"github.com/fjod/storefront/internal/profile"
)

type State string

const (
	StateSignedOut         State = "signed_out"
	StateOptimisticPending State = "optimistic_pending"
	StateLiveSignedIn      State = "live_signed_in"
	StateLiveSignedOut     State = "live_signed_out"
)

const defaultReconcileTimeout = 10 * time.Second

var (
	ErrSignInInProgress = errors.New("sign-in already in progress")
	ErrLinkDeclined     = errors.New("account linking declined")
	ErrLinkMismatch     = errors.New("re-authenticated account does not own the email")
	ErrNotAttached      = errors.New("session has no identity client")
)

// IdentityClient is the per-client identity provider connection.
type IdentityClient interface {
	SignIn(ctx context.Context, cred identity.Credential) (*identity.Identity, error)
	SignOut(ctx context.Context) error
	Subscribe(fn func(*identity.Identity)) (unsubscribe func())
	Link(ctx context.Context, current *identity.Identity, cred identity.Credential) (*identity.Identity, error)
	Current() *identity.Identity
}

type Reconciler interface {
	EnsureProfile(ctx context.Context, id *identity.Identity) (domain.Role, error)
}

// LinkPrompt asks the user how to resolve a sign-in whose email already
// belongs to an account of another provider.
type LinkPrompt interface {
	ConfirmLink(ctx context.Context, email, existingProvider string) (bool, error)
	// Reauthenticate returns a fresh credential for existingProvider.
	Reauthenticate(ctx context.Context, existingProvider string) (identity.Credential, error)
}

// ProfileError reports that the user is signed in but the profile could not
// be reconciled. The role stays at its last known value.
type ProfileError struct {
	UID string
	Err error
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("reconcile profile %s: %v", e.UID, e.Err)
}

func (e *ProfileError) Unwrap() error { return e.Err }

type Options struct {
	ReconcileTimeout time.Duration
}

type Session struct {
	store      kvstore.Store
	reconciler Reconciler
	logger     *zap.Logger
	timeout    time.Duration

	signingIn atomic.Bool

	mu          sync.Mutex
	state       State
	cached      *domain.SessionSnapshot
	live        *domain.SessionSnapshot
	avatar      string
	initialized bool
	client      IdentityClient
	unsubscribe func()
}

// Open loads the cached snapshot and avatar from store.
func Open(ctx context.Context, store kvstore.Store, reconciler Reconciler, logger *zap.Logger, opts Options) (*Session, error) {
	s := &Session{
		store:      store,
		reconciler: reconciler,
		logger:     logger,
		timeout:    opts.ReconcileTimeout,
		state:      StateSignedOut,
	}
	if s.timeout <= 0 {
		s.timeout = defaultReconcileTimeout
	}

	var cached domain.SessionSnapshot
	err := kvstore.GetJSON(ctx, store, kvstore.KeyUserCache, &cached)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
	case err != nil:
		// a corrupt cache is only a missed optimisation
		logger.Warn("ignoring unreadable session cache", zap.Error(err))
	default:
		s.cached = &cached
		s.state = StateOptimisticPending
	}

	avatar, err := store.Get(ctx, kvstore.KeyUserAvatar)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load avatar: %w", err)
	default:
		s.avatar = string(avatar)
	}

	return s, nil
}

// Attach subscribes the session to client's feed.
func (s *Session) Attach(client IdentityClient) {
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	unsubscribe := client.Subscribe(s.onIdentity)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// Close stops feed deliveries.
func (s *Session) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Session) onIdentity(id *identity.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.initialized = true }()

	// A stale delivery stands in for the client's current state; the
	// delivery queued for that state is then skipped as already applied.
	if s.client != nil {
		if current := s.client.Current(); !sameAccount(id, current) {
			id = current
		}
	}
	if s.alreadyApplied(id) {
		return
	}
	if id == nil {
		s.applySignedOut(ctx)
		return
	}
	_, err := s.applyIdentity(ctx, id)
	switch {
	case errors.Is(err, profile.ErrQuotaExceeded):
		s.logger.Warn("session feed: account rejected", zap.String("uid", id.UID), zap.Error(err))
		if err := s.client.SignOut(ctx); err != nil {
			s.logger.Warn("failed to sign out rejected account", zap.Error(err))
		}
		s.applySignedOut(ctx)
	case err != nil:
		s.logger.Warn("session feed: profile not reconciled", zap.String("uid", id.UID), zap.Error(err))
	}
}

func sameAccount(a, b *identity.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.UID == b.UID
}

// alreadyApplied reports whether id is what a direct sign-in or sign-out has
// already put in place, so a late feed delivery does not redo the work.
func (s *Session) alreadyApplied(id *identity.Identity) bool {
	if id == nil {
		return s.state == StateLiveSignedOut
	}
	return s.state == StateLiveSignedIn && s.live != nil && s.live.Role.Valid() &&
		*s.live == snapshotOf(id, s.live.Role)
}

func snapshotOf(id *identity.Identity, role domain.Role) domain.SessionSnapshot {
	return domain.SessionSnapshot{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
		Role:        role,
	}
}

// knownRole is the role to show for uid until the profile is read. A role
// cached for a different account is never carried over.
func (s *Session) knownRole(uid string) domain.Role {
	if s.live != nil && s.live.UID == uid {
		return s.live.Role
	}
	if s.cached != nil && s.cached.UID == uid {
		return s.cached.Role
	}
	return domain.RoleUnknown
}

type saved struct {
	state  State
	cached *domain.SessionSnapshot
	live   *domain.SessionSnapshot
	avatar string
}

func (s *Session) save() saved {
	return saved{state: s.state, cached: s.cached, live: s.live, avatar: s.avatar}
}

// restore puts back prev, including what was written to the store.
func (s *Session) restore(ctx context.Context, prev saved) {
	s.state, s.cached, s.live, s.avatar = prev.state, prev.cached, prev.live, prev.avatar
	if prev.cached != nil {
		s.writeCache(ctx, *prev.cached)
	} else {
		s.deleteKey(ctx, kvstore.KeyUserCache)
	}
	if prev.avatar != "" {
		if err := s.store.Set(ctx, kvstore.KeyUserAvatar, []byte(prev.avatar)); err != nil {
			s.logger.Warn("failed to cache avatar", zap.Error(err))
		}
	} else {
		s.deleteKey(ctx, kvstore.KeyUserAvatar)
	}
}

// applyIdentity makes id the signed-in user. An account over its
// registration quota is refused: the session is left as it was and
// profile.ErrQuotaExceeded is returned.
func (s *Session) applyIdentity(ctx context.Context, id *identity.Identity) (*domain.SessionSnapshot, error) {
	prev := s.save()
	snap := snapshotOf(id, s.knownRole(id.UID))
	s.writeCache(ctx, snap)
	s.avatar = id.PhotoURL
	if err := s.store.Set(ctx, kvstore.KeyUserAvatar, []byte(id.PhotoURL)); err != nil {
		s.logger.Warn("failed to cache avatar", zap.Error(err))
	}

	role, err := s.reconciler.EnsureProfile(ctx, id)
	if errors.Is(err, profile.ErrQuotaExceeded) {
		s.restore(ctx, prev)
		return nil, err
	}
	if err == nil && role.Valid() {
		snap.Role = role
		s.writeCache(ctx, snap)
	}

	s.live = &snap
	s.cached = &snap
	s.state = StateLiveSignedIn

	out := snap
	if err != nil {
		return &out, &ProfileError{UID: id.UID, Err: err}
	}
	return &out, nil
}

func (s *Session) applySignedOut(ctx context.Context) {
	s.deleteKey(ctx, kvstore.KeyUserCache)
	s.deleteKey(ctx, kvstore.KeyUserAvatar)
	s.live = nil
	s.cached = nil
	s.avatar = ""
	s.state = StateLiveSignedOut
}

func (s *Session) deleteKey(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		s.logger.Warn("failed to clear session cache", zap.String("key", key), zap.Error(err))
	}
}

func (s *Session) writeCache(ctx context.Context, snap domain.SessionSnapshot) {
	if err := kvstore.SetJSON(ctx, s.store, kvstore.KeyUserCache, snap); err != nil {
		s.logger.Warn("failed to cache session", zap.String("uid", snap.UID), zap.Error(err))
	}
}

// SignIn signs in with cred. A failed attempt leaves the session as it was.
// When the email already belongs to an account of another provider, prompt
// decides whether cred gets linked to that account; with a nil prompt the
// *identity.CredentialConflictError is returned as is.
//
// If the profile cannot be reconciled the user is still signed in: the
// snapshot is returned together with a *ProfileError. An account refused
// for exceeding its registration quota is signed out of the identity
// client again and profile.ErrQuotaExceeded is returned.
func (s *Session) SignIn(ctx context.Context, cred identity.Credential, prompt LinkPrompt) (*domain.SessionSnapshot, error) {
	if !s.signingIn.CompareAndSwap(false, true) {
		return nil, ErrSignInInProgress
	}
	defer s.signingIn.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, ErrNotAttached
	}

	id, err := s.client.SignIn(ctx, cred)
	var conflict *identity.CredentialConflictError
	if errors.As(err, &conflict) && prompt != nil {
		id, err = s.link(ctx, conflict, prompt)
	}
	if err != nil {
		s.logger.Info("sign-in failed", zap.String("provider", cred.Provider), zap.Error(err))
		return nil, err
	}

	snap, err := s.applyIdentity(ctx, id)
	if errors.Is(err, profile.ErrQuotaExceeded) {
		s.logger.Info("sign-in refused", zap.String("uid", id.UID), zap.Error(err))
		if err := s.client.SignOut(ctx); err != nil {
			s.logger.Warn("failed to sign out refused account", zap.Error(err))
		} else if s.state == StateLiveSignedIn {
			// the identity client no longer holds the previous account either
			s.applySignedOut(ctx)
		}
	}
	return snap, err
}

func (s *Session) link(ctx context.Context, conflict *identity.CredentialConflictError, prompt LinkPrompt) (*identity.Identity, error) {
	if len(conflict.ExistingProviders) == 0 {
		return nil, conflict
	}
	existing := conflict.ExistingProviders[0]

	ok, err := prompt.ConfirmLink(ctx, conflict.Email, existing)
	if err != nil {
		return nil, fmt.Errorf("confirm link: %w", err)
	}
	if !ok {
		return nil, ErrLinkDeclined
	}

	fresh, err := prompt.Reauthenticate(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("re-authenticate with %s: %w", existing, err)
	}
	if fresh.Provider != existing {
		return nil, fmt.Errorf("%w: expected a %s credential", ErrLinkMismatch, existing)
	}
	primary, err := s.client.SignIn(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("re-authenticate with %s: %w", existing, err)
	}
	if primary.Email != conflict.Email {
		return nil, ErrLinkMismatch
	}

	linked, err := s.client.Link(ctx, primary, conflict.Pending)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", conflict.Pending.Provider, err)
	}
	s.logger.Info("accounts linked", zap.String("uid", linked.UID), zap.String("provider", conflict.Pending.Provider))
	return linked, nil
}

func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return ErrNotAttached
	}
	if err := s.client.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	s.applySignedOut(ctx)
	return nil
}

// Snapshot is the live state once the feed has delivered, the cached state
// before that. Nil means signed out.
func (s *Session) Snapshot() *domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *domain.SessionSnapshot {
	snap := s.cached
	if s.initialized {
		snap = s.live
	}
	if snap == nil {
		return nil
	}
	out := *snap
	return &out
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Session) IsAuthenticated() bool {
	return s.Snapshot() != nil
}

func (s *Session) IsAdmin() bool {
	snap := s.Snapshot()
	return snap != nil && snap.Role == domain.RoleAdmin
}

func (s *Session) Avatar() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.avatar != "" {
		return s.avatar
	}
	if snap := s.snapshotLocked(); snap != nil {
		return snap.PhotoURL
	}
	return ""
}

func (s *Session) DisplayName() string {
	snap := s.Snapshot()
	switch {
	case snap == nil:
		return "User"
	case snap.DisplayName != "":
		return snap.DisplayName
	case snap.Email != "":
		return snap.Email
	}
	return "User"
}
