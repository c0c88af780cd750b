package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
	"github.com/fleetd/fleet-server/internal/storage"
	"github.com/fleetd/fleet-server/pkg/crypto"
)

// IdentitySource selects the authoritative router identifier
type IdentitySource string

const (
	IdentitySourceSerial IdentitySource = "serial"
	IdentitySourceIMSI   IdentitySource = "imsi"
)

// maxIdentifierAttempts bounds generate-then-check uniqueness retries.
// Collisions are astronomically unlikely; the cap guards against a
// misbehaving store reporting everything as taken.
const maxIdentifierAttempts = 10

// ErrIdentifierSpaceExhausted is returned when unique identifier generation
// keeps colliding past the retry ceiling.
var ErrIdentifierSpaceExhausted = errors.New("identifier generation exhausted retry budget")

// IdentityResolver locates or creates devices and keeps authoritative
// identifiers unique across the fleet.
type IdentityResolver struct {
	store  Store
	source IdentitySource
}

// NewIdentityResolver creates an identity resolver
func NewIdentityResolver(store Store, source IdentitySource) *IdentityResolver {
	if source != IdentitySourceIMSI {
		source = IdentitySourceSerial
	}
	return &IdentityResolver{store: store, source: source}
}

// Source returns the configured authoritative identifier
func (r *IdentityResolver) Source() IdentitySource {
	return r.source
}

// ResolveRouter finds the device a router check-in belongs to, by the
// configured authoritative identifier. When the non-authoritative identifier
// moved from another device record, that record is invalidated: SIM cards
// move between physical units independently of serial numbers.
func (r *IdentityResolver) ResolveRouter(ctx context.Context, rctx *RequestContext) (*models.Device, error) {
	p := rctx.Payload

	var device *models.Device
	var err error

	switch r.source {
	case IdentitySourceIMSI:
		if p.IMSI == "" {
			return nil, nil
		}
		device, err = r.store.GetDeviceByIMSI(ctx, p.IMSI)
	default:
		if p.SerialNumber == "" {
			return nil, nil
		}
		device, err = r.store.GetDeviceBySerialNumber(ctx, p.SerialNumber)
	}

	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up device: %w", err)
	}

	if err := r.reclaimSecondaryIdentifier(ctx, rctx, device); err != nil {
		return nil, err
	}

	return device, nil
}

// reclaimSecondaryIdentifier moves the non-authoritative identifier onto the
// found device, clearing it from any other record that still holds it.
func (r *IdentityResolver) reclaimSecondaryIdentifier(ctx context.Context, rctx *RequestContext, device *models.Device) error {
	p := rctx.Payload

	switch r.source {
	case IdentitySourceIMSI:
		if p.SerialNumber == "" || (device.HasSerial() && *device.SerialNumber == p.SerialNumber) {
			return nil
		}
		if err := r.invalidateSerialHolder(ctx, rctx, device.ID, p.SerialNumber); err != nil {
			return err
		}
		serial := p.SerialNumber
		device.SerialNumber = &serial

	default:
		if p.IMSI == "" || (device.HasIMSI() && *device.IMSI == p.IMSI) {
			return nil
		}
		if err := r.invalidateIMSIHolder(ctx, rctx, device.ID, p.IMSI); err != nil {
			return err
		}
		imsi := p.IMSI
		device.IMSI = &imsi
	}

	return nil
}

// invalidateSerialHolder clears the serial from whichever other device holds
// it. Devices are never deleted; one left without any identifier keeps an
// INVALID placeholder name.
func (r *IdentityResolver) invalidateSerialHolder(ctx context.Context, rctx *RequestContext, keepID uuid.UUID, serial string) error {
	other, err := r.store.GetDeviceBySerialNumber(ctx, serial)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.ID == keepID {
		return nil
	}

	oldSerial := *other.SerialNumber
	other.SerialNumber = nil
	if !other.HasIMSI() {
		other.Name = "INVALID " + oldSerial
	}

	rctx.Log.Warning("identity.invalidated",
		fmt.Sprintf("serial %s reassigned, invalidated device %s", oldSerial, other.ID))

	return r.store.UpdateDevice(ctx, other)
}

// invalidateIMSIHolder clears the IMSI from whichever other device holds it
func (r *IdentityResolver) invalidateIMSIHolder(ctx context.Context, rctx *RequestContext, keepID uuid.UUID, imsi string) error {
	other, err := r.store.GetDeviceByIMSI(ctx, imsi)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.ID == keepID {
		return nil
	}

	oldIMSI := *other.IMSI
	other.IMSI = nil
	if !other.HasSerial() {
		other.Name = "INVALID " + oldIMSI
	}

	rctx.Log.Warning("identity.invalidated",
		fmt.Sprintf("imsi %s reassigned, invalidated device %s", oldIMSI, other.ID))

	return r.store.UpdateDevice(ctx, other)
}

// CreateDevice builds and persists a new device for a first contact
func (r *IdentityResolver) CreateDevice(ctx context.Context, rctx *RequestContext, name string) (*models.Device, error) {
	deviceUUID, err := r.GenerateDeviceUUID(ctx)
	if err != nil {
		return nil, err
	}

	hash, err := r.GenerateHashIdentifier(ctx)
	if err != nil {
		return nil, err
	}

	secret, err := crypto.GenerateRandomString(24)
	if err != nil {
		return nil, err
	}

	p := rctx.Payload
	device := &models.Device{
		DeviceTypeID:   rctx.DeviceType.ID,
		Name:           name,
		UUID:           deviceUUID,
		HashIdentifier: hash,
		DownloadSecret: secret,
	}

	if p.SerialNumber != "" {
		serial := p.SerialNumber
		device.SerialNumber = &serial
	}
	if p.IMSI != "" && rctx.DeviceType.HasGSM {
		imsi := p.IMSI
		device.IMSI = &imsi
	}
	if p.IMEI != "" && rctx.DeviceType.HasGSM {
		imei := p.IMEI
		device.IMEI = &imei
	}
	if p.Model != "" {
		model := p.Model
		device.Model = &model
	}

	if err := r.store.CreateDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}

	rctx.Log.Info("identity.created",
		fmt.Sprintf("device does not exist, created %s (%s)", device.Name, device.UUID))

	return device, nil
}

// GenerateDeviceUUID generates a device UUID unique across the fleet
func (r *IdentityResolver) GenerateDeviceUUID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		candidate := uuid.New().String()

		_, err := r.store.GetDeviceByUUID(ctx, candidate)
		if errors.Is(err, storage.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrIdentifierSpaceExhausted
}

// GenerateHashIdentifier generates the 14-character hash identifier used in
// firmware download URLs.
func (r *IdentityResolver) GenerateHashIdentifier(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		raw, err := crypto.GenerateRandomBytes(8)
		if err != nil {
			return "", err
		}
		candidate := hex.EncodeToString(raw)[:14]

		_, err = r.store.GetDeviceByHashIdentifier(ctx, candidate)
		if errors.Is(err, storage.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrIdentifierSpaceExhausted
}

// GenerateTransactionID generates a unique command transaction id
func (r *IdentityResolver) GenerateTransactionID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		candidate := uuid.New().String()

		_, err := r.store.GetDeviceCommandByTransactionID(ctx, candidate)
		if errors.Is(err, storage.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrIdentifierSpaceExhausted
}

// FallbackIdentifier derives a display identifier when a device submits
// neither serial nor IMSI.
func FallbackIdentifier() string {
	return fmt.Sprintf("Unknown-%s-%d", uuid.New().String(), time.Now().Unix())
}
