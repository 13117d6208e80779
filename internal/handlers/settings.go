package handlers

import (
	"context"
	"net/http"

	"healthmate/internal/logger"
	"healthmate/internal/models"
)

// SettingsStore is the storage the settings endpoints need
type SettingsStore interface {
	Settings(ctx context.Context, userID string) (*models.UserSettings, error)
	SaveSettings(ctx context.Context, s *models.UserSettings) error
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)
}

// SettingsHandler serves per-user settings and the local notification inbox
type SettingsHandler struct {
	store SettingsStore
}

// NewSettingsHandler creates a settings handler
func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// Register mounts the settings routes on mux
func (h *SettingsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /settings/{user_id}", h.get)
	mux.HandleFunc("PUT /settings/{user_id}", h.put)
	mux.HandleFunc("GET /notifications/{user_id}", h.notifications)
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Settings(r.Context(), r.PathValue("user_id"))
	if err != nil {
		log := logger.WithComponent("settings_handler")
		log.Error().Err(err).Msg("failed to load settings")
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request) {
	var s models.UserSettings
	if status, err := decodeBody(w, r, defaultMaxBodySize, &s); err != nil {
		writeError(w, status, err.Error())
		return
	}

	// the path is authoritative
	s.UserID = r.PathValue("user_id")
	if s.Contacts == nil {
		s.Contacts = []models.EmergencyContact{}
	}
	if err := s.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.SaveSettings(r.Context(), &s); err != nil {
		log := logger.WithComponent("settings_handler")
		log.Error().Err(err).Str("user_id", s.UserID).Msg("failed to save settings")
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, &s)
}

func (h *SettingsHandler) notifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListNotifications(r.Context(), r.PathValue("user_id"))
	if err != nil {
		log := logger.WithComponent("settings_handler")
		log.Error().Err(err).Msg("failed to list notifications")
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}
