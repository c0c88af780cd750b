package models

import (
	"time"

	"github.com/google/uuid"
)

// SecretBehavior governs how a device-type secret comes into existence and
// whether it rotates.
type SecretBehavior string

const (
	// SecretBehaviorStatic values are entered by an administrator and never
	// touched by the engine.
	SecretBehaviorStatic SecretBehavior = "STATIC"
	// SecretBehaviorGenerate values are generated once on first use.
	SecretBehaviorGenerate SecretBehavior = "GENERATE"
	// SecretBehaviorGenerateRenew values are generated and then renewed on a
	// schedule.
	SecretBehaviorGenerateRenew SecretBehavior = "GENERATE_RENEW"
)

// IsGenerateKind reports whether the behavior creates values
func (b SecretBehavior) IsGenerateKind() bool {
	return b == SecretBehaviorGenerate || b == SecretBehaviorGenerateRenew
}

// IsRenewKind reports whether the behavior rotates values
func (b SecretBehavior) IsRenewKind() bool {
	return b == SecretBehaviorGenerateRenew
}

// DeviceTypeSecret is the per-device-type secret policy
type DeviceTypeSecret struct {
	BaseModel

	DeviceTypeID uuid.UUID `json:"deviceTypeId" db:"device_type_id"`

	// Name is the variable name the secret is exposed under
	Name string `json:"name" db:"name"`

	Behavior      SecretBehavior `json:"behavior" db:"behavior"`
	UseAsVariable bool           `json:"useAsVariable" db:"use_as_variable"`

	// RenewAfterDays applies to renew-kind behaviors
	RenewAfterDays int `json:"renewAfterDays" db:"renew_after_days"`

	// Length of generated values in bytes of entropy
	Length int `json:"length" db:"length"`
}

// DeviceSecret is one secret instance bound to a device
type DeviceSecret struct {
	BaseModel

	DeviceID           uuid.UUID `json:"deviceId" db:"device_id"`
	DeviceTypeSecretID uuid.UUID `json:"deviceTypeSecretId" db:"device_type_secret_id"`

	EncryptedValue []byte    `json:"-" db:"encrypted_value"`
	RenewedAt      time.Time `json:"renewedAt" db:"renewed_at"`
	ForceRenewal   bool      `json:"forceRenewal" db:"force_renewal"`
}
