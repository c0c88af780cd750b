package models

// FieldRequirement describes how a device-submitted field is treated for a
// device type.
type FieldRequirement string

const (
	FieldRequired                FieldRequirement = "REQUIRED"
	FieldOptional                FieldRequirement = "OPTIONAL"
	FieldRequiredInCommunication FieldRequirement = "REQUIRED_IN_COMMUNICATION"
	FieldNone                    FieldRequirement = "NONE"
)

// DeviceField names a device-submitted identifying field subject to a
// FieldRequirement.
type DeviceField string

const (
	DeviceFieldSerialNumber DeviceField = "serialNumber"
	DeviceFieldIMSI         DeviceField = "imsi"
	DeviceFieldIMEI         DeviceField = "imei"
	DeviceFieldModel        DeviceField = "model"
	DeviceFieldName         DeviceField = "name"
)

// FieldRequirements maps device fields to their requirement level
type FieldRequirements map[DeviceField]FieldRequirement

// Get returns the requirement for a field, defaulting to NONE
func (r FieldRequirements) Get(f DeviceField) FieldRequirement {
	if r == nil {
		return FieldNone
	}
	if v, ok := r[f]; ok {
		return v
	}
	return FieldNone
}

// DeviceType is the administrator-defined template describing protocol and
// capabilities for a class of devices. The engine treats it as read-only.
type DeviceType struct {
	BaseModel

	Name      string `json:"name" db:"name"`
	Slug      string `json:"slug" db:"slug"`
	Protocol  string `json:"protocol" db:"protocol"`
	IsEnabled bool   `json:"isEnabled" db:"is_enabled"`

	// RoutePrefix scopes every communication route this type contributes.
	RoutePrefix string `json:"routePrefix" db:"route_prefix"`

	// Feature slots
	FirmwareSlots         SlotFlags `json:"firmwareSlots" db:"-"`
	ConfigSlots           SlotFlags `json:"configSlots" db:"-"`
	AlwaysReinstallConfig SlotFlags `json:"alwaysReinstallConfig" db:"-"`

	// Capabilities
	HasVPN             bool `json:"hasVpn" db:"has_vpn"`
	HasCertificates    bool `json:"hasCertificates" db:"has_certificates"`
	HasGSM             bool `json:"hasGsm" db:"has_gsm"`
	HasEndpointDevices bool `json:"hasEndpointDevices" db:"has_endpoint_devices"`
	HasDeviceCommands  bool `json:"hasDeviceCommands" db:"has_device_commands"`

	// Field requirements for device-submitted identifiers
	FieldRequirements FieldRequirements `json:"fieldRequirements" db:"-"`

	// VariableOrder, when set, is the explicit list of variable names exposed
	// to config rendering, in this order. Listed names covering an indexed
	// family (vip, pip) expand across the device's virtual subnet. An empty
	// list exposes every resolved variable.
	VariableOrder []string `json:"variableOrder" db:"-"`

	// RSRP gating: a firmware/config push is withheld while the reported
	// signal is weaker than RequiredMinRsrp.
	RsrpGatingEnabled bool `json:"rsrpGatingEnabled" db:"rsrp_gating_enabled"`
	RequiredMinRsrp   int  `json:"requiredMinRsrp" db:"required_min_rsrp"`

	// VPNCertificateTypeConfigured is derived from the certificate type
	// assignments; VPN availability requires it plus a license.
	VPNCertificateTypeConfigured bool `json:"vpnCertificateTypeConfigured" db:"vpn_certificate_type_configured"`

	Description string `json:"description" db:"description"`
}

// VPNAvailable reports whether VPN features can actually be used on this
// device type under the given license state.
func (t *DeviceType) VPNAvailable(licensed bool) bool {
	return t.HasVPN && licensed && t.VPNCertificateTypeConfigured
}
