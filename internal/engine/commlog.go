package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetd/fleet-server/internal/models"
)

// CommRecorder buffers communication log entries for one request. Entries
// recorded before the device is identified are attached to it when Persist
// runs, satisfying the always-associated audit invariant.
type CommRecorder struct {
	requestID    string
	logger       zerolog.Logger
	deviceID     *uuid.UUID
	deviceTypeID *uuid.UUID
	entries      []*models.CommunicationLog
}

// NewCommRecorder creates a recorder for one request
func NewCommRecorder(requestID string, logger zerolog.Logger) *CommRecorder {
	return &CommRecorder{
		requestID: requestID,
		logger:    logger.With().Str("request_id", requestID).Logger(),
	}
}

// SetDeviceType scopes subsequent and buffered entries to a device type
func (r *CommRecorder) SetDeviceType(id uuid.UUID) {
	r.deviceTypeID = &id
}

// SetDevice scopes subsequent and buffered entries to the identified device
func (r *CommRecorder) SetDevice(id uuid.UUID) {
	r.deviceID = &id
}

// Record appends one entry and mirrors it to the operational logger
func (r *CommRecorder) Record(level models.CommLevel, code, message string, details models.Variables) {
	r.entries = append(r.entries, &models.CommunicationLog{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		RequestID: r.requestID,
		Level:     level,
		Code:      code,
		Message:   message,
		Details:   details,
	})

	event := r.logger.Debug()
	switch level {
	case models.CommLevelInfo:
		event = r.logger.Info()
	case models.CommLevelWarning:
		event = r.logger.Warn()
	case models.CommLevelError, models.CommLevelCritical:
		event = r.logger.Error()
	}
	event.Str("code", code).Msg(message)
}

// Debug records a debug entry
func (r *CommRecorder) Debug(code, message string) {
	r.Record(models.CommLevelDebug, code, message, nil)
}

// Info records an info entry
func (r *CommRecorder) Info(code, message string) {
	r.Record(models.CommLevelInfo, code, message, nil)
}

// Warning records a warning entry
func (r *CommRecorder) Warning(code, message string) {
	r.Record(models.CommLevelWarning, code, message, nil)
}

// Error records an error entry
func (r *CommRecorder) Error(code, message string) {
	r.Record(models.CommLevelError, code, message, nil)
}

// Critical records a critical entry
func (r *CommRecorder) Critical(code, message string) {
	r.Record(models.CommLevelCritical, code, message, nil)
}

// Entries returns the buffered entries
func (r *CommRecorder) Entries() []*models.CommunicationLog {
	return r.entries
}

// Persist attaches scoping ids to every buffered entry, writes them to the
// store and hands them to the publisher. Store failures are logged and do not
// fail the request.
func (r *CommRecorder) Persist(ctx context.Context, store Store, publisher EventPublisher) {
	for _, entry := range r.entries {
		entry.DeviceID = r.deviceID
		entry.DeviceTypeID = r.deviceTypeID

		if err := store.CreateCommunicationLog(ctx, entry); err != nil {
			r.logger.Error().Err(err).Str("code", entry.Code).Msg("persist communication log entry")
			continue
		}
		if publisher != nil {
			publisher.PublishCommunicationLog(ctx, entry)
		}
	}
	r.entries = nil
}
