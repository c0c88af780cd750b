package models

import (
	"time"

	"github.com/google/uuid"
)

// CertificateCategory classifies certificate types by their role
type CertificateCategory string

const (
	CertificateCategoryVPN    CertificateCategory = "VPN"
	CertificateCategoryDevice CertificateCategory = "DEVICE"
	CertificateCategoryServer CertificateCategory = "SERVER"
	CertificateCategoryCA     CertificateCategory = "CA"
)

// CertificateType describes one kind of certificate the system manages
type CertificateType struct {
	BaseModel

	Name     string              `json:"name" db:"name"`
	Category CertificateCategory `json:"category" db:"category"`

	// EnableSubjectAltName marks types whose identity content can change,
	// which makes the revoke-on-next-communication flag meaningful.
	EnableSubjectAltName bool `json:"enableSubjectAltName" db:"enable_subject_alt_name"`
}

// DeviceTypeCertificateType binds a certificate type to a device type and
// carries the per-type renewal policy.
type DeviceTypeCertificateType struct {
	BaseModel

	DeviceTypeID      uuid.UUID `json:"deviceTypeId" db:"device_type_id"`
	CertificateTypeID uuid.UUID `json:"certificateTypeId" db:"certificate_type_id"`

	AutoRenew           bool `json:"autoRenew" db:"auto_renew"`
	AutoRenewDaysBefore int  `json:"autoRenewDaysBefore" db:"auto_renew_days_before"`

	// VariableName is the config-template variable the certificate material
	// is exposed under.
	VariableName string `json:"variableName" db:"variable_name"`

	// Available is derived from license and configuration state
	Available bool `json:"available" db:"available"`

	// Resolved relation
	CertificateType *CertificateType `json:"certificateType,omitempty"`
}

// Certificate is one certificate instance bound to a device
type Certificate struct {
	BaseModel

	DeviceID          uuid.UUID `json:"deviceId" db:"device_id"`
	CertificateTypeID uuid.UUID `json:"certificateTypeId" db:"certificate_type_id"`

	SerialNumber string `json:"serialNumber" db:"serial_number"`

	// Encrypted PEM material
	EncryptedCertificate []byte `json:"-" db:"encrypted_certificate"`
	EncryptedPrivateKey  []byte `json:"-" db:"encrypted_private_key"`

	GeneratedAt *time.Time `json:"generatedAt,omitempty" db:"generated_at"`
	ValidFrom   *time.Time `json:"validFrom,omitempty" db:"valid_from"`
	ValidTo     *time.Time `json:"validTo,omitempty" db:"valid_to"`

	// RevokeOnNextCommunication requests revocation and regeneration on the
	// device's next check-in.
	RevokeOnNextCommunication bool `json:"revokeOnNextCommunication" db:"revoke_on_next_communication"`
}

// Generated reports whether certificate material has been issued
func (c *Certificate) Generated() bool {
	return c.GeneratedAt != nil && len(c.EncryptedCertificate) > 0
}
