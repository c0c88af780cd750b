package models

import (
	"github.com/google/uuid"
)

// FirmwareAssignment names the firmware a slot should run
type FirmwareAssignment struct {
	Version  string    `json:"version" db:"version"`
	FileID   uuid.UUID `json:"fileId" db:"file_id"`
	FileName string    `json:"fileName" db:"file_name"`
}

// ConfigAssignment names the config template a slot should render
type ConfigAssignment struct {
	TemplateName string `json:"templateName" db:"template_name"`
}

// EndpointDevice is a secondary device reachable through a primary device's
// VPN tunnel.
type EndpointDevice struct {
	Index      int    `json:"index" db:"index"`
	Name       string `json:"name" db:"name"`
	VirtualIP  string `json:"virtualIp" db:"virtual_ip"`
	PhysicalIP string `json:"physicalIp" db:"physical_ip"`
}

// Masquerade is a NAT rule definition attached to a template version
type Masquerade struct {
	SourceCIDR string `json:"sourceCidr" db:"source_cidr"`
	OutIface   string `json:"outIface" db:"out_iface"`
}

// TemplateVersion is the resolved set of firmware/config assignments and
// endpoint-device definitions for a device, selected once per request by the
// device's staging flag and treated as read-only thereafter.
type TemplateVersion struct {
	BaseModel

	DeviceTypeID uuid.UUID `json:"deviceTypeId" db:"device_type_id"`
	Staging      bool      `json:"staging" db:"staging"`

	Firmware [SlotCount]*FirmwareAssignment `json:"firmware" db:"-"`
	Configs  [SlotCount]*ConfigAssignment   `json:"configs" db:"-"`

	EndpointDevices []EndpointDevice `json:"endpointDevices" db:"-"`
	Masquerades     []Masquerade     `json:"masquerades" db:"-"`

	// Template-level variables, merged below device-defined ones
	Variables Variables `json:"variables" db:"variables"`
}

// FirmwareFor returns the firmware assignment for a slot, nil when unassigned
func (t *TemplateVersion) FirmwareFor(s Slot) *FirmwareAssignment {
	if !s.Valid() {
		return nil
	}
	return t.Firmware[s]
}

// ConfigFor returns the config assignment for a slot, nil when unassigned
func (t *TemplateVersion) ConfigFor(s Slot) *ConfigAssignment {
	if !s.Valid() {
		return nil
	}
	return t.Configs[s]
}
