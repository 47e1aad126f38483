// Package identity is the identity platform: it verifies provider ID tokens,
// keeps the account registry in the document store and feeds session
// changes to subscribed clients.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ProviderGoogle   = "google.com"
	ProviderFacebook = "facebook.com"
	ProviderLine     = "oidc.line"
)

var (
	ErrUnknownProvider   = errors.New("unknown identity provider")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrCredentialInUse   = errors.New("credential already linked to another account")
	ErrAccountNotFound   = errors.New("account not found")
	ErrNotSignedIn       = errors.New("no user signed in")
	ErrClientClosed      = errors.New("identity client closed")
)

// Credential is a provider-issued ID token.
type Credential struct {
	Provider string
	Token    string
}

// Identity is a signed-in account as seen by the client.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	// Provider is the provider used for this sign-in.
	Provider  string
	Providers []string
}

func (i *Identity) clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Providers = append([]string(nil), i.Providers...)
	return &c
}

// CredentialConflictError means the email of the credential already belongs
// to an account registered through other providers. Pending can be linked to
// that account once the user signs in with one of ExistingProviders.
type CredentialConflictError struct {
	Email             string
	ExistingProviders []string
	Pending           Credential
}

func (e *CredentialConflictError) Error() string {
	return fmt.Sprintf("account exists with different credential: %s is registered with %s",
		e.Email, strings.Join(e.ExistingProviders, ", "))
}
