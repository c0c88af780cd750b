package models

import (
	"time"

	"github.com/google/uuid"
)

// Device represents one physical unit of a device type.
type Device struct {
	BaseModel

	DeviceTypeID uuid.UUID `json:"deviceTypeId" db:"device_type_id"`

	// Identifiers. Which one is authoritative is protocol dependent.
	Name           string  `json:"name" db:"name"`
	UUID           string  `json:"uuid" db:"uuid"`
	HashIdentifier string  `json:"hashIdentifier" db:"hash_identifier"`
	SerialNumber   *string `json:"serialNumber,omitempty" db:"serial_number"`
	IMSI           *string `json:"imsi,omitempty" db:"imsi"`
	IMEI           *string `json:"imei,omitempty" db:"imei"`
	Model          *string `json:"model,omitempty" db:"model"`

	// DownloadSecret authenticates firmware download URLs.
	DownloadSecret string `json:"-" db:"download_secret"`

	// Per-slot reinstall request flags, set by the engine and cleared once
	// the artifact is delivered.
	ReinstallFirmware SlotFlags `json:"reinstallFirmware" db:"-"`
	ReinstallConfig   SlotFlags `json:"reinstallConfig" db:"-"`

	// Telemetry, refreshed on every communication
	LastSeenAt              *time.Time  `json:"lastSeenAt,omitempty" db:"last_seen_at"`
	ConnectionCount         int64       `json:"connectionCount" db:"connection_count"`
	ReportedFirmware        SlotStrings `json:"reportedFirmware" db:"-"`
	ReportedConfigChecksums SlotStrings `json:"reportedConfigChecksums" db:"-"`
	LocalIP                 string      `json:"localIp,omitempty" db:"local_ip"`
	PublicIP                string      `json:"publicIp,omitempty" db:"public_ip"`

	// GSM telemetry, only written when the device type enables GSM
	Rsrp     *int   `json:"rsrp,omitempty" db:"rsrp"`
	Rsrq     *int   `json:"rsrq,omitempty" db:"rsrq"`
	Operator string `json:"operator,omitempty" db:"operator"`
	CellID   string `json:"cellId,omitempty" db:"cell_id"`

	// VPN address, assigned once when VPN is available
	VPNIP string `json:"vpnIp,omitempty" db:"vpn_ip"`

	// VirtualSubnetSize bounds the indexed endpoint-device variables
	VirtualSubnetSize int `json:"virtualSubnetSize" db:"virtual_subnet_size"`

	// Staging selects the staging template version over production
	Staging bool `json:"staging" db:"staging"`

	// User-entered variables, last in the resolution override order
	DeviceVariables Variables `json:"deviceVariables" db:"device_variables"`

	IsDisabled bool `json:"isDisabled" db:"is_disabled"`
}

// HasSerial reports whether the device holds a non-empty serial number
func (d *Device) HasSerial() bool {
	return d.SerialNumber != nil && *d.SerialNumber != ""
}

// HasIMSI reports whether the device holds a non-empty IMSI
func (d *Device) HasIMSI() bool {
	return d.IMSI != nil && *d.IMSI != ""
}
