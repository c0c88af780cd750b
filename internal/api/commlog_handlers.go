package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
	"github.com/fleetd/fleet-server/internal/storage"
)

// HandleListCommunicationLogs lists communication log entries with optional
// filters.
func (s *RESTServer) HandleListCommunicationLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	q := r.URL.Query()

	var filters storage.CommunicationLogFilters

	if raw := q.Get("device_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid device_id")
			return
		}
		filters.DeviceID = &id
	}
	if raw := q.Get("device_type_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid device_type_id")
			return
		}
		filters.DeviceTypeID = &id
	}
	if raw := q.Get("request_id"); raw != "" {
		filters.RequestID = &raw
	}
	if raw := q.Get("level"); raw != "" {
		level := models.CommLevel(raw)
		filters.Level = &level
	}
	if raw := q.Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		filters.StartTime = &t
	}
	if raw := q.Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		filters.EndTime = &t
	}

	entries, total, err := s.store.ListCommunicationLogs(r.Context(), filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list communication logs")
		return
	}

	s.respondList(w, entries, total)
}
