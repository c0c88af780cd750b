package engine

import (
	"github.com/fleetd/fleet-server/internal/models"
)

// Feature names a capability a procedure can require from its device type
type Feature string

const (
	FeatureFirmware        Feature = "FIRMWARE"
	FeatureConfig          Feature = "CONFIG"
	FeatureVPN             Feature = "VPN"
	FeatureCertificates    Feature = "CERTIFICATES"
	FeatureGSM             Feature = "GSM"
	FeatureEndpointDevices Feature = "ENDPOINT_DEVICES"
	FeatureDeviceCommands  Feature = "DEVICE_COMMANDS"
)

// Requirements is the declarative requirement set a procedure attaches to its
// protocol: features and certificate categories it needs or can use, and how
// device-submitted identifying fields are treated.
type Requirements struct {
	RequiredFeatures []Feature
	OptionalFeatures []Feature

	RequiredCertificateCategories []models.CertificateCategory
	OptionalCertificateCategories []models.CertificateCategory

	Fields models.FieldRequirements
}

// featureSatisfied reports whether the device type provides a feature under
// the given license state.
func featureSatisfied(dt *models.DeviceType, f Feature, vpnLicensed bool) bool {
	switch f {
	case FeatureFirmware:
		return dt.FirmwareSlots.Any()
	case FeatureConfig:
		return dt.ConfigSlots.Any()
	case FeatureVPN:
		return dt.VPNAvailable(vpnLicensed)
	case FeatureCertificates:
		return dt.HasCertificates
	case FeatureGSM:
		return dt.HasGSM
	case FeatureEndpointDevices:
		return dt.HasEndpointDevices
	case FeatureDeviceCommands:
		return dt.HasDeviceCommands
	default:
		return false
	}
}

// UnmetFeatures returns the required features the device type does not satisfy
func (r Requirements) UnmetFeatures(dt *models.DeviceType, vpnLicensed bool) []Feature {
	var unmet []Feature
	for _, f := range r.RequiredFeatures {
		if !featureSatisfied(dt, f, vpnLicensed) {
			unmet = append(unmet, f)
		}
	}
	return unmet
}

// UnmetCertificateCategories returns required certificate categories with no
// available assignment on the device type.
func (r Requirements) UnmetCertificateCategories(assignments []*models.DeviceTypeCertificateType) []models.CertificateCategory {
	available := make(map[models.CertificateCategory]bool)
	for _, a := range assignments {
		if a.Available && a.CertificateType != nil {
			available[a.CertificateType.Category] = true
		}
	}

	var unmet []models.CertificateCategory
	for _, c := range r.RequiredCertificateCategories {
		if !available[c] {
			unmet = append(unmet, c)
		}
	}
	return unmet
}

// MissingRequiredFields returns the required fields absent from the payload
func (r Requirements) MissingRequiredFields(p *Payload) []models.DeviceField {
	var missing []models.DeviceField
	check := func(f models.DeviceField, value string) {
		req := r.Fields.Get(f)
		if (req == models.FieldRequired || req == models.FieldRequiredInCommunication) && value == "" {
			missing = append(missing, f)
		}
	}

	check(models.DeviceFieldSerialNumber, p.SerialNumber)
	check(models.DeviceFieldIMSI, p.IMSI)
	check(models.DeviceFieldIMEI, p.IMEI)
	check(models.DeviceFieldModel, p.Model)
	check(models.DeviceFieldName, p.Name)
	return missing
}
