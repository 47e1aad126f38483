package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/identity"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/profile"
	"github.com/fjod/storefront/internal/session"
	"github.com/fjod/storefront/internal/storefront"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// ConflictResponse tells the caller which provider to re-authenticate with
// before the credential can be linked.
type ConflictResponse struct {
	ErrorResponse
	Email            string `json:"email"`
	ExistingProvider string `json:"existing_provider"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps a domain error to a status code and error body. Anything
// unrecognised is treated as a backing store failure.
func handleError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var (
		validation *checkout.ValidationError
		conflict   *identity.CredentialConflictError
		profileErr *session.ProfileError
	)

	switch {
	case errors.As(err, &validation):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: validation.Message, Code: "validation_failed", Details: validation.Field})
	case errors.As(err, &conflict):
		existing := ""
		if len(conflict.ExistingProviders) > 0 {
			existing = conflict.ExistingProviders[0]
		}
		respondJSON(w, http.StatusConflict, ConflictResponse{
			ErrorResponse:    ErrorResponse{Error: err.Error(), Code: "account_exists_with_different_credential"},
			Email:            conflict.Email,
			ExistingProvider: existing,
		})
	case errors.Is(err, session.ErrLinkDeclined):
		respondError(w, http.StatusBadRequest, "link_declined", err.Error())
	case errors.Is(err, session.ErrSignInInProgress):
		respondError(w, http.StatusConflict, "sign_in_in_progress", err.Error())
	case errors.Is(err, profile.ErrQuotaExceeded):
		respondError(w, http.StatusForbidden, "quota_exceeded", err.Error())
	case errors.As(err, &profileErr):
		logger.Error("profile store failure", zap.Error(err))
		respondError(w, http.StatusBadGateway, "store_unavailable", "profile could not be loaded")
	case errors.Is(err, identity.ErrInvalidCredential),
		errors.Is(err, identity.ErrUnknownProvider),
		errors.Is(err, identity.ErrCredentialInUse),
		errors.Is(err, session.ErrLinkMismatch):
		respondError(w, http.StatusUnauthorized, "sign_in_failed", "Login Failed: "+err.Error())
	case errors.Is(err, orders.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, orders.ErrInvalidStatus):
		respondError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, storefront.ErrInvalidClientID):
		respondError(w, http.StatusBadRequest, "invalid_client_id", err.Error())
	case errors.Is(err, storefront.ErrRegistryClosed):
		respondError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
	default:
		logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "store_unavailable", "storage is unavailable, try again later")
	}
}
