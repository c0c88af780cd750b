package models

import (
	"time"

	"github.com/google/uuid"
)

// CommLevel represents communication log severity levels
type CommLevel string

const (
	CommLevelDebug    CommLevel = "DEBUG"
	CommLevelInfo     CommLevel = "INFO"
	CommLevelWarning  CommLevel = "WARNING"
	CommLevelError    CommLevel = "ERROR"
	CommLevelCritical CommLevel = "CRITICAL"
)

// CommunicationLog is one append-only audit entry for a decision made while
// handling a device request. Entries recorded before the device is identified
// are re-attached once it is.
type CommunicationLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	DeviceID     *uuid.UUID `json:"deviceId,omitempty" db:"device_id"`
	DeviceTypeID *uuid.UUID `json:"deviceTypeId,omitempty" db:"device_type_id"`

	RequestID string    `json:"requestId" db:"request_id"`
	Level     CommLevel `json:"level" db:"level"`
	Code      string    `json:"code" db:"code"`
	Message   string    `json:"message" db:"message"`

	Details Variables `json:"details,omitempty" db:"details"`
}
