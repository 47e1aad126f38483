package http

import (
	"net/http"

	"go.uber.org/zap"
)

type PreferencesHandler struct {
	logger *zap.Logger
}

func NewPreferencesHandler(logger *zap.Logger) *PreferencesHandler {
	return &PreferencesHandler{logger: logger}
}

type ThemeResponse struct {
	Theme string `json:"theme"`
}

func (h *PreferencesHandler) GetTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := clientFromContext(r.Context()).Theme(r.Context())
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ThemeResponse{Theme: theme})
}

func (h *PreferencesHandler) ToggleTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := clientFromContext(r.Context()).ToggleTheme(r.Context())
	if err != nil {
		handleError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ThemeResponse{Theme: theme})
}
