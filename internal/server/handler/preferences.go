package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// PreferenceHandler serves per-profile UI preferences.
type PreferenceHandler struct {
	prefs          domain.PreferenceStore
	defaultProfile string
	logger         *slog.Logger
}

// NewPreferenceHandler creates a PreferenceHandler. Requests without a
// profile query parameter use defaultProfile.
func NewPreferenceHandler(prefs domain.PreferenceStore, defaultProfile string, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs, defaultProfile: defaultProfile, logger: logHandler(logger, "preferences")}
}

type themeBody struct {
	Theme domain.Theme `json:"theme"`
}

func (h *PreferenceHandler) profile(r *http.Request) string {
	if p := strings.TrimSpace(r.URL.Query().Get("profile")); p != "" {
		return p
	}
	return h.defaultProfile
}

// GetTheme returns the stored theme, light when none was saved.
// GET /api/preferences/theme
func (h *PreferenceHandler) GetTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := h.prefs.Theme(r.Context(), h.profile(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to read theme")
		return
	}
	writeJSON(w, http.StatusOK, themeBody{Theme: theme})
}

// PutTheme stores the theme.
// PUT /api/preferences/theme
func (h *PreferenceHandler) PutTheme(w http.ResponseWriter, r *http.Request) {
	var body themeBody
	if err := decodeJSON(r, w, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Theme != domain.ThemeLight && body.Theme != domain.ThemeDark {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("theme must be %q or %q", domain.ThemeLight, domain.ThemeDark))
		return
	}
	if err := h.prefs.SetTheme(r.Context(), h.profile(r), body.Theme); err != nil {
		writeDomainError(w, r, h.logger, err, "failed to save theme")
		return
	}
	writeJSON(w, http.StatusOK, body)
}
