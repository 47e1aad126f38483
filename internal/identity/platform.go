package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/docstore"
)

const (
	accountsCollection = "auth_accounts"
	linksCollection    = "auth_links"
	emailsCollection   = "auth_emails"
)

type tokenClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

type account struct {
	Email       string    `bson:"email"`
	DisplayName string    `bson:"display_name"`
	PhotoURL    string    `bson:"photo_url"`
	Providers   []string  `bson:"providers"`
	CreatedAt   time.Time `bson:"created_at"`
}

type pointer struct {
	UID string `bson:"uid"`
}

type Platform struct {
	secrets map[string][]byte
	store   docstore.Store
	logger  *zap.Logger
}

// NewPlatform builds a platform that accepts tokens from every provider that
// has a signing secret.
func NewPlatform(store docstore.Store, secrets map[string]string, logger *zap.Logger) *Platform {
	keys := make(map[string][]byte, len(secrets))
	for provider, secret := range secrets {
		if secret != "" {
			keys[provider] = []byte(secret)
		}
	}
	return &Platform{secrets: keys, store: store, logger: logger}
}

func (p *Platform) verify(cred Credential) (*tokenClaims, error) {
	key, ok := p.secrets[cred.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cred.Provider)
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(cred.Token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cred.Provider),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidCredential)
	}
	claims.Email = strings.ToLower(strings.TrimSpace(claims.Email))
	return claims, nil
}

func linkID(provider, subject string) string {
	return provider + ":" + subject
}

// SignIn resolves the credential to an account, registering a new one the
// first time a provider subject is seen. It fails with a
// *CredentialConflictError when the email is already registered through a
// different provider.
func (p *Platform) SignIn(ctx context.Context, cred Credential) (*Identity, error) {
	claims, err := p.verify(cred)
	if err != nil {
		return nil, err
	}

	var result *Identity
	err = p.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		uid, err := lookup(ctx, tx, linksCollection, linkID(cred.Provider, claims.Subject))
		if err != nil {
			return err
		}
		if uid != "" {
			acc, err := getAccount(ctx, tx, uid)
			if err != nil {
				return err
			}
			result = acc.identity(uid, cred.Provider)
			return nil
		}

		if claims.Email != "" {
			owner, err := lookup(ctx, tx, emailsCollection, claims.Email)
			if err != nil {
				return err
			}
			if owner != "" {
				acc, err := getAccount(ctx, tx, owner)
				if err != nil {
					return err
				}
				return &CredentialConflictError{
					Email:             claims.Email,
					ExistingProviders: slices.Clone(acc.Providers),
					Pending:           cred,
				}
			}
		}

		uid = uuid.NewString()
		acc := account{
			Email:       claims.Email,
			DisplayName: claims.Name,
			PhotoURL:    claims.Picture,
			Providers:   []string{cred.Provider},
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Set(ctx, accountsCollection, uid, acc); err != nil {
			return err
		}
		if err := tx.Set(ctx, linksCollection, linkID(cred.Provider, claims.Subject), pointer{UID: uid}); err != nil {
			return err
		}
		if claims.Email != "" {
			if err := tx.Set(ctx, emailsCollection, claims.Email, pointer{UID: uid}); err != nil {
				return err
			}
		}
		p.logger.Info("account registered", zap.String("uid", uid), zap.String("provider", cred.Provider))
		result = acc.identity(uid, cred.Provider)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Link attaches cred to the account uid.
func (p *Platform) Link(ctx context.Context, uid string, cred Credential) (*Identity, error) {
	claims, err := p.verify(cred)
	if err != nil {
		return nil, err
	}

	var result *Identity
	err = p.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		id := linkID(cred.Provider, claims.Subject)
		owner, err := lookup(ctx, tx, linksCollection, id)
		if err != nil {
			return err
		}
		if owner != "" && owner != uid {
			return ErrCredentialInUse
		}

		acc, err := getAccount(ctx, tx, uid)
		if err != nil {
			return err
		}
		if !slices.Contains(acc.Providers, cred.Provider) {
			acc.Providers = append(acc.Providers, cred.Provider)
		}
		if acc.PhotoURL == "" {
			acc.PhotoURL = claims.Picture
		}
		if acc.DisplayName == "" {
			acc.DisplayName = claims.Name
		}
		if err := tx.Set(ctx, accountsCollection, uid, acc); err != nil {
			return err
		}
		if err := tx.Set(ctx, linksCollection, id, pointer{UID: uid}); err != nil {
			return err
		}
		result = acc.identity(uid, cred.Provider)
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("credential linked", zap.String("uid", uid), zap.String("provider", cred.Provider))
	return result, nil
}

// Resume looks up a previously signed-in account.
func (p *Platform) Resume(ctx context.Context, uid, provider string) (*Identity, error) {
	acc, err := getAccount(ctx, p.store, uid)
	if err != nil {
		return nil, err
	}
	return acc.identity(uid, provider), nil
}

func lookup(ctx context.Context, tx docstore.Tx, collection, id string) (string, error) {
	snap, err := tx.Get(ctx, collection, id)
	if err != nil {
		return "", err
	}
	if !snap.Exists() {
		return "", nil
	}
	var ptr pointer
	if err := snap.Decode(&ptr); err != nil {
		return "", err
	}
	return ptr.UID, nil
}

func getAccount(ctx context.Context, tx docstore.Tx, uid string) (*account, error) {
	snap, err := tx.Get(ctx, accountsCollection, uid)
	if err != nil {
		return nil, err
	}
	var acc account
	if err := snap.Decode(&acc); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, uid)
		}
		return nil, err
	}
	return &acc, nil
}

func (a *account) identity(uid, provider string) *Identity {
	return &Identity{
		UID:         uid,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		PhotoURL:    a.PhotoURL,
		Provider:    provider,
		Providers:   slices.Clone(a.Providers),
	}
}
