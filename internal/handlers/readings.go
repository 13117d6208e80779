package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"healthmate/internal/logger"
	"healthmate/internal/metrics"
	"healthmate/internal/models"
	"healthmate/internal/storage"
	"healthmate/internal/worker"
)

// ReadingStore is the storage the readings endpoints need
type ReadingStore interface {
	InsertMeasurement(ctx context.Context, m *models.Measurement) error
	ListMeasurements(ctx context.Context, userID string, limit int) ([]*models.Measurement, error)
	DeleteMeasurement(ctx context.Context, id string) error
}

// Submitter queues a stored reading for evaluation
type Submitter interface {
	Submit(m *models.Measurement) error
}

// ReadingsHandler serves POST/GET /readings and DELETE /readings/{id}
type ReadingsHandler struct {
	store       ReadingStore
	queue       Submitter
	maxBodySize int64
	now         func() time.Time
}

// ReadingsConfig holds configuration for the readings handler
type ReadingsConfig struct {
	Store       ReadingStore
	Queue       Submitter
	MaxBodySize int64
}

// NewReadingsHandler creates a new readings handler
func NewReadingsHandler(cfg ReadingsConfig) *ReadingsHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = defaultMaxBodySize
	}
	return &ReadingsHandler{
		store:       cfg.Store,
		queue:       cfg.Queue,
		maxBodySize: maxBodySize,
		now:         time.Now,
	}
}

// Register mounts the readings routes on mux
func (h *ReadingsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /readings", h.create)
	mux.HandleFunc("GET /readings", h.list)
	mux.HandleFunc("DELETE /readings/{id}", h.delete)
}

// ReadingResponse is a stored reading with its display value
type ReadingResponse struct {
	models.ReadingInput
	Value string `json:"value"`
}

// CreateResponse is returned when a reading is accepted
type CreateResponse struct {
	Success bool            `json:"success"`
	Reading ReadingResponse `json:"reading"`
}

func toResponse(m *models.Measurement) ReadingResponse {
	return ReadingResponse{ReadingInput: models.InputFrom(m), Value: m.Vital.Format()}
}

func (h *ReadingsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in models.ReadingInput
	if status, err := decodeBody(w, r, h.maxBodySize, &in); err != nil {
		metrics.ReadingsReceivedTotal.WithLabelValues("http", "rejected").Inc()
		writeError(w, status, err.Error())
		return
	}

	m, err := in.Measurement(h.now())
	if err != nil {
		metrics.ReadingsReceivedTotal.WithLabelValues("http", "rejected").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := logger.WithMeasurement("readings_handler", m.UserID, m.ID)

	if err := h.store.InsertMeasurement(r.Context(), m); err != nil {
		metrics.ReadingsReceivedTotal.WithLabelValues("http", "rejected").Inc()
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "reading already exists")
			return
		}
		log.Error().Err(err).Msg("failed to store reading")
		writeError(w, http.StatusInternalServerError, "failed to store reading")
		return
	}

	if err := h.queue.Submit(m); err != nil {
		// undo so the client can retry with the same id
		if derr := h.store.DeleteMeasurement(context.WithoutCancel(r.Context()), m.ID); derr != nil {
			log.Error().Err(derr).Msg("failed to roll back reading")
		}
		metrics.ReadingsReceivedTotal.WithLabelValues("http", "rejected").Inc()
		if errors.Is(err, worker.ErrQueueFull) {
			w.Header().Set("Retry-After", "1")
		}
		log.Warn().Err(err).Msg("evaluation queue unavailable")
		writeError(w, http.StatusServiceUnavailable, "evaluation queue unavailable, try again later")
		return
	}

	metrics.ReadingsReceivedTotal.WithLabelValues("http", "accepted").Inc()
	log.Debug().Str("kind", string(m.Kind())).Msg("reading accepted")
	writeJSON(w, http.StatusAccepted, CreateResponse{Success: true, Reading: toResponse(m)})
}

func (h *ReadingsHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list, err := h.store.ListMeasurements(r.Context(), userID, limit)
	if err != nil {
		log := logger.WithComponent("readings_handler")
		log.Error().Err(err).Str("user_id", userID).Msg("failed to list readings")
		writeError(w, http.StatusInternalServerError, "failed to list readings")
		return
	}

	out := make([]ReadingResponse, 0, len(list))
	for _, m := range list {
		out = append(out, toResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ReadingsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.store.DeleteMeasurement(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "reading not found")
	case err != nil:
		log := logger.WithComponent("readings_handler")
		log.Error().Err(err).Str("measurement_id", id).Msg("failed to delete reading")
		writeError(w, http.StatusInternalServerError, "failed to delete reading")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
