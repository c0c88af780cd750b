package models

import (
	"time"

	"github.com/google/uuid"
)

// CommandStatus tracks a queued device command through its lifecycle
type CommandStatus string

const (
	CommandStatusPending CommandStatus = "PENDING"
	CommandStatusSent    CommandStatus = "SENT"
	CommandStatusAcked   CommandStatus = "ACKED"
	CommandStatusFailed  CommandStatus = "FAILED"
)

// DeviceCommand is one administrator-queued command delivered to a device at
// check-in and acknowledged on a later request.
type DeviceCommand struct {
	BaseModel

	DeviceID uuid.UUID `json:"deviceId" db:"device_id"`

	// TransactionID is the unique id the device echoes back in its ack
	TransactionID string `json:"transactionId" db:"transaction_id"`

	Command string        `json:"command" db:"command"`
	Status  CommandStatus `json:"status" db:"status"`

	SentAt  *time.Time `json:"sentAt,omitempty" db:"sent_at"`
	AckedAt *time.Time `json:"ackedAt,omitempty" db:"acked_at"`
}
