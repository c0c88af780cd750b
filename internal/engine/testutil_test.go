package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetd/fleet-server/internal/generator"
	"github.com/fleetd/fleet-server/internal/models"
	"github.com/fleetd/fleet-server/internal/pki"
	"github.com/fleetd/fleet-server/internal/storage"
	"github.com/fleetd/fleet-server/pkg/crypto"
)

var errAuthorityDown = errors.New("authority unavailable")

// memStore is an in-memory Store fake for engine tests
type memStore struct {
	devices        map[uuid.UUID]*models.Device
	deviceTypes    map[uuid.UUID]*models.DeviceType
	templates      map[uuid.UUID]*models.TemplateVersion
	certTypes      map[uuid.UUID][]*models.DeviceTypeCertificateType
	certificates   map[uuid.UUID][]*models.Certificate
	secretPolicies map[uuid.UUID][]*models.DeviceTypeSecret
	secrets        map[uuid.UUID][]*models.DeviceSecret
	commands       map[string]*models.DeviceCommand
	firmwareFiles  map[uuid.UUID]*models.FirmwareFile
	logs           []*models.CommunicationLog

	// everythingTaken makes every uniqueness probe report a hit, for
	// collision retry tests. collisionsLeft reports that many hits before
	// probes fall through to the real lookup.
	everythingTaken bool
	collisionsLeft  int
}

// probeCollision consumes one synthetic uniqueness-probe hit
func (m *memStore) probeCollision() bool {
	if m.everythingTaken {
		return true
	}
	if m.collisionsLeft > 0 {
		m.collisionsLeft--
		return true
	}
	return false
}

func newMemStore() *memStore {
	return &memStore{
		devices:        make(map[uuid.UUID]*models.Device),
		deviceTypes:    make(map[uuid.UUID]*models.DeviceType),
		templates:      make(map[uuid.UUID]*models.TemplateVersion),
		certTypes:      make(map[uuid.UUID][]*models.DeviceTypeCertificateType),
		certificates:   make(map[uuid.UUID][]*models.Certificate),
		secretPolicies: make(map[uuid.UUID][]*models.DeviceTypeSecret),
		secrets:        make(map[uuid.UUID][]*models.DeviceSecret),
		commands:       make(map[string]*models.DeviceCommand),
		firmwareFiles:  make(map[uuid.UUID]*models.FirmwareFile),
	}
}

func (m *memStore) CreateDevice(ctx context.Context, device *models.Device) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	copied := *device
	m.devices[device.ID] = &copied
	return nil
}

func (m *memStore) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (m *memStore) GetDeviceByUUID(ctx context.Context, deviceUUID string) (*models.Device, error) {
	if m.probeCollision() {
		return &models.Device{UUID: deviceUUID}, nil
	}
	for _, d := range m.devices {
		if d.UUID == deviceUUID {
			copied := *d
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) GetDeviceByHashIdentifier(ctx context.Context, hash string) (*models.Device, error) {
	if m.probeCollision() {
		return &models.Device{HashIdentifier: hash}, nil
	}
	for _, d := range m.devices {
		if d.HashIdentifier == hash {
			copied := *d
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) GetDeviceBySerialNumber(ctx context.Context, serial string) (*models.Device, error) {
	for _, d := range m.devices {
		if d.SerialNumber != nil && *d.SerialNumber == serial {
			copied := *d
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) GetDeviceByIMSI(ctx context.Context, imsi string) (*models.Device, error) {
	for _, d := range m.devices {
		if d.IMSI != nil && *d.IMSI == imsi {
			copied := *d
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	if _, ok := m.devices[device.ID]; !ok {
		return storage.ErrNotFound
	}
	copied := *device
	m.devices[device.ID] = &copied
	return nil
}

func (m *memStore) ListDeviceTypes(ctx context.Context, enabledOnly bool, limit, offset int) ([]*models.DeviceType, int64, error) {
	var out []*models.DeviceType
	for _, dt := range m.deviceTypes {
		if enabledOnly && !dt.IsEnabled {
			continue
		}
		out = append(out, dt)
	}
	return out, int64(len(out)), nil
}

func (m *memStore) GetDeviceTypeBySlug(ctx context.Context, slug string) (*models.DeviceType, error) {
	for _, dt := range m.deviceTypes {
		if dt.Slug == slug {
			return dt, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) GetTemplateVersion(ctx context.Context, deviceTypeID uuid.UUID, staging bool) (*models.TemplateVersion, error) {
	tv, ok := m.templates[deviceTypeID]
	if !ok || tv.Staging != staging {
		return nil, storage.ErrNotFound
	}
	return tv, nil
}

func (m *memStore) ListDeviceTypeCertificateTypes(ctx context.Context, deviceTypeID uuid.UUID) ([]*models.DeviceTypeCertificateType, error) {
	return m.certTypes[deviceTypeID], nil
}

func (m *memStore) GetDeviceCertificateByType(ctx context.Context, deviceID, certificateTypeID uuid.UUID) (*models.Certificate, error) {
	for _, c := range m.certificates[deviceID] {
		if c.CertificateTypeID == certificateTypeID {
			return c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) ListDeviceCertificates(ctx context.Context, deviceID uuid.UUID) ([]*models.Certificate, error) {
	return m.certificates[deviceID], nil
}

func (m *memStore) UpdateCertificate(ctx context.Context, cert *models.Certificate) error {
	return nil
}

func (m *memStore) ListDeviceTypeSecrets(ctx context.Context, deviceTypeID uuid.UUID) ([]*models.DeviceTypeSecret, error) {
	return m.secretPolicies[deviceTypeID], nil
}

func (m *memStore) ListDeviceSecrets(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceSecret, error) {
	return m.secrets[deviceID], nil
}

func (m *memStore) GetDeviceSecret(ctx context.Context, deviceID, deviceTypeSecretID uuid.UUID) (*models.DeviceSecret, error) {
	for _, s := range m.secrets[deviceID] {
		if s.DeviceTypeSecretID == deviceTypeSecretID {
			return s, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) CreateDeviceSecret(ctx context.Context, secret *models.DeviceSecret) error {
	if secret.ID == uuid.Nil {
		secret.ID = uuid.New()
	}
	m.secrets[secret.DeviceID] = append(m.secrets[secret.DeviceID], secret)
	return nil
}

func (m *memStore) UpdateDeviceSecret(ctx context.Context, secret *models.DeviceSecret) error {
	return nil
}

func (m *memStore) CreateCommunicationLog(ctx context.Context, entry *models.CommunicationLog) error {
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memStore) ListPendingDeviceCommands(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceCommand, error) {
	var out []*models.DeviceCommand
	for _, cmd := range m.commands {
		if cmd.DeviceID == deviceID && cmd.Status == models.CommandStatusPending {
			out = append(out, cmd)
		}
	}
	return out, nil
}

func (m *memStore) GetDeviceCommandByTransactionID(ctx context.Context, transactionID string) (*models.DeviceCommand, error) {
	if m.probeCollision() {
		return &models.DeviceCommand{TransactionID: transactionID}, nil
	}
	cmd, ok := m.commands[transactionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cmd, nil
}

func (m *memStore) UpdateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error {
	m.commands[cmd.TransactionID] = cmd
	return nil
}

func (m *memStore) GetFirmwareFile(ctx context.Context, id uuid.UUID) (*models.FirmwareFile, error) {
	f, ok := m.firmwareFiles[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return f, nil
}

func (m *memStore) IncrementFirmwareDownloadCount(ctx context.Context, id uuid.UUID) error {
	if f, ok := m.firmwareFiles[id]; ok {
		f.DownloadCount++
	}
	return nil
}

// addDeviceType registers a device type and returns it
func (m *memStore) addDeviceType(dt *models.DeviceType) *models.DeviceType {
	if dt.ID == uuid.Nil {
		dt.ID = uuid.New()
	}
	m.deviceTypes[dt.ID] = dt
	return dt
}

// addDevice registers a device and returns the stored copy
func (m *memStore) addDevice(d *models.Device) *models.Device {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	copied := *d
	m.devices[d.ID] = &copied
	return &copied
}

func newTestID() uuid.UUID { return uuid.New() }

// testRequestContext builds a request context over a device type
func testRequestContext(dt *models.DeviceType) *RequestContext {
	return NewRequestContext(dt, zerolog.Nop())
}

// testCryptoService builds an encryption service with a fixed key
func testCryptoService() *crypto.Service {
	key := make([]byte, 32)
	svc, err := crypto.NewService(hex.EncodeToString(key))
	if err != nil {
		panic(err)
	}
	return svc
}

// stubGenerator returns fixed artifact content and records the variables it
// was handed.
type stubGenerator struct {
	content   []byte
	generated bool
	err       error
	lastVars  map[string]string
}

func (g *stubGenerator) Generate(ctx context.Context, deviceType *models.DeviceType, device *models.Device, slot models.Slot, assignment *models.ConfigAssignment, variables map[string]string) (*generator.Artifact, error) {
	g.lastVars = variables
	if g.err != nil {
		return nil, g.err
	}
	return &generator.Artifact{Content: g.content, Generated: g.generated}, nil
}

// stubAuthority issues fixed certificate material or fails on demand
type stubAuthority struct {
	fail   bool
	issued int
}

func (a *stubAuthority) RevokeAndGenerate(ctx context.Context, device *models.Device, certType *models.CertificateType) (*pki.IssuedCertificate, error) {
	if a.fail {
		return nil, errAuthorityDown
	}
	a.issued++
	now := time.Now()
	return &pki.IssuedCertificate{
		SerialNumber:   "stub-serial",
		CertificatePEM: []byte("CERT"),
		PrivateKeyPEM:  []byte("KEY"),
		ValidFrom:      now,
		ValidTo:        now.AddDate(1, 0, 0),
	}, nil
}
