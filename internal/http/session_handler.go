package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/internal/storefront"
)

type SessionHandler struct {
	timeout time.Duration
	logger  *zap.Logger
}

func NewSessionHandler(timeout time.Duration, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{timeout: timeout, logger: logger}
}

type SessionResponse struct {
	State         session.State           `json:"state"`
	Initialized   bool                    `json:"initialized"`
	Authenticated bool                    `json:"authenticated"`
	IsAdmin       bool                    `json:"is_admin"`
	DisplayName   string                  `json:"display_name"`
	Avatar        string                  `json:"avatar"`
	User          *domain.SessionSnapshot `json:"user,omitempty"`
}

// LinkDecisionDTO answers the link prompt ahead of time. Token is a
// credential for the provider that already owns the email.
type LinkDecisionDTO struct {
	Confirm bool   `json:"confirm"`
	Token   string `json:"token"`
}

type SignInRequestDTO struct {
	Provider string           `json:"provider"`
	Token    string           `json:"token"`
	Link     *LinkDecisionDTO `json:"link,omitempty"`
}

func sessionResponse(c *storefront.Client) SessionResponse {
	s := c.Session
	return SessionResponse{
		State:         s.State(),
		Initialized:   s.IsInitialized(),
		Authenticated: s.IsAuthenticated(),
		IsAdmin:       s.IsAdmin(),
		DisplayName:   s.DisplayName(),
		Avatar:        s.Avatar(),
		User:          s.Snapshot(),
	}
}

func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionResponse(clientFromContext(r.Context())))
}

func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SignInRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Provider == "" || req.Token == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "provider and token are required")
		return
	}

	c := clientFromContext(r.Context())
	var prompt session.LinkPrompt
	if req.Link != nil {
		prompt = &requestPrompt{decision: *req.Link}
	}

	_, err := c.Session.SignIn(ctx, identity.Credential{Provider: req.Provider, Token: req.Token}, prompt)
	if err != nil {
		// The identity stands when only the profile failed; the role stays
		// whatever was cached. A refused account is already signed out.
		var profileErr *session.ProfileError
		if !errors.As(err, &profileErr) {
			handleError(w, h.logger, err)
			return
		}
		h.logger.Warn("signed in without profile", zap.String("uid", profileErr.UID), zap.Error(profileErr.Err))
	}
	respondJSON(w, http.StatusOK, sessionResponse(c))
}

func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c := clientFromContext(r.Context())
	if err := c.Session.SignOut(ctx); err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(c))
}

// requestPrompt answers the link prompt from the sign-in request body.
type requestPrompt struct {
	decision LinkDecisionDTO
}

func (p *requestPrompt) ConfirmLink(_ context.Context, _, _ string) (bool, error) {
	return p.decision.Confirm, nil
}

func (p *requestPrompt) Reauthenticate(_ context.Context, existingProvider string) (identity.Credential, error) {
	if p.decision.Token == "" {
		return identity.Credential{}, identity.ErrInvalidCredential
	}
	return identity.Credential{Provider: existingProvider, Token: p.decision.Token}, nil
}
