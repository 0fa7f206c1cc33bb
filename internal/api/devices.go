package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gophyn/phynbridge/internal/history"
)

// deviceStateResponse is the JSON shape for a stored device state.
type deviceStateResponse struct {
	DeviceID  string         `json:"device_id"`
	Topic     string         `json:"topic"`
	Data      map[string]any `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// historyEntryResponse is the JSON shape for one history entry.
type historyEntryResponse struct {
	ID         int64          `json:"id"`
	DeviceID   string         `json:"device_id"`
	Topic      string         `json:"topic"`
	Data       map[string]any `json:"data"`
	ReceivedAt time.Time      `json:"received_at"`
}

// handleListDevices returns the identifiers of all devices with a stored
// state.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeNotFound(w, "local store is disabled")
		return
	}

	devices, err := s.store.Devices(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "listing devices failed")
		return
	}
	if devices == nil {
		devices = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// handleDeviceState returns the last known state of a device.
func (s *Server) handleDeviceState(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeNotFound(w, "local store is disabled")
		return
	}

	deviceID := chi.URLParam(r, "id")
	state, err := s.store.LastState(r.Context(), deviceID)
	if errors.Is(err, history.ErrNotFound) {
		writeNotFound(w, "device has not reported")
		return
	}
	if err != nil {
		s.logger.Error("reading device state", "device_id", deviceID, "error", err)
		writeInternalError(w, "reading device state failed")
		return
	}

	writeJSON(w, http.StatusOK, deviceStateResponse{
		DeviceID:  state.DeviceID,
		Topic:     state.Topic,
		Data:      state.Data,
		UpdatedAt: state.UpdatedAt,
	})
}

// handleDeviceHistory returns recent updates for a device, newest first.
// The optional limit query parameter caps the number of entries.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeNotFound(w, "local store is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	deviceID := chi.URLParam(r, "id")
	entries, err := s.store.History(r.Context(), deviceID, limit)
	if err != nil {
		s.logger.Error("reading device history", "device_id", deviceID, "error", err)
		writeInternalError(w, "reading device history failed")
		return
	}

	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntryResponse{
			ID:         e.ID,
			DeviceID:   e.DeviceID,
			Topic:      e.Topic,
			Data:       e.Data,
			ReceivedAt: e.ReceivedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
