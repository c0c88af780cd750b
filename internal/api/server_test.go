package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetd/fleet-server/internal/auth"
	"github.com/fleetd/fleet-server/internal/config"
	"github.com/fleetd/fleet-server/internal/engine"
	"github.com/fleetd/fleet-server/internal/models"
	"github.com/fleetd/fleet-server/internal/storage"
)

// fakeStore overrides only what a test touches; everything else panics
// through the embedded nil interface.
type fakeStore struct {
	storage.Store

	devices       map[string]*models.Device
	deviceTypes   map[string]*models.DeviceType
	firmwareFiles map[uuid.UUID]*models.FirmwareFile
	users         map[string]*models.User
	downloads     int
	logs          []*models.CommunicationLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices:       make(map[string]*models.Device),
		deviceTypes:   make(map[string]*models.DeviceType),
		firmwareFiles: make(map[uuid.UUID]*models.FirmwareFile),
		users:         make(map[string]*models.User),
	}
}

func (f *fakeStore) GetDeviceByHashIdentifier(ctx context.Context, hash string) (*models.Device, error) {
	d, ok := f.devices[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) GetDeviceTypeBySlug(ctx context.Context, slug string) (*models.DeviceType, error) {
	dt, ok := f.deviceTypes[slug]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return dt, nil
}

func (f *fakeStore) ListDeviceTypes(ctx context.Context, enabledOnly bool, limit, offset int) ([]*models.DeviceType, int64, error) {
	return nil, 0, nil
}

func (f *fakeStore) GetFirmwareFile(ctx context.Context, id uuid.UUID) (*models.FirmwareFile, error) {
	file, ok := f.firmwareFiles[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return file, nil
}

func (f *fakeStore) IncrementFirmwareDownloadCount(ctx context.Context, id uuid.UUID) error {
	f.downloads++
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) CreateCommunicationLog(ctx context.Context, entry *models.CommunicationLog) error {
	f.logs = append(f.logs, entry)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:          "test-secret",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: time.Hour,
		},
		Fleet: config.FleetConfig{
			FirmwareStorageDir: t.TempDir(),
		},
	}
}

func testServer(t *testing.T, store *fakeStore) (*RESTServer, *config.Config) {
	t.Helper()
	cfg := testConfig(t)
	dispatcher := engine.NewDispatcher(store, engine.Base{Store: store, Logger: zerolog.Nop()})
	identity := engine.NewIdentityResolver(store, engine.IdentitySourceSerial)
	return NewRESTServer(cfg, store, dispatcher, identity), cfg
}

func firmwareFixture(t *testing.T, cfg *config.Config, store *fakeStore) (string, *models.FirmwareFile) {
	t.Helper()

	dt := &models.DeviceType{
		Name:      "acme router",
		Slug:      "acme-router",
		Protocol:  engine.ProtocolRouter,
		IsEnabled: true,
	}
	dt.ID = uuid.New()
	store.deviceTypes[dt.Slug] = dt

	device := &models.Device{
		DeviceTypeID:   dt.ID,
		UUID:           uuid.New().String(),
		HashIdentifier: "0123456789abcd",
		DownloadSecret: "download-secret",
	}
	device.ID = uuid.New()
	store.devices[device.HashIdentifier] = device

	file := &models.FirmwareFile{
		DeviceTypeID: dt.ID,
		FileName:     "fw-2.0.bin",
		StoragePath:  "fw-2.0.bin",
	}
	file.ID = uuid.New()
	store.firmwareFiles[file.ID] = file
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Fleet.FirmwareStorageDir, file.StoragePath), []byte("firmware bytes"), 0o600))

	return "/df/" + device.HashIdentifier + "/" + device.DownloadSecret + "/" + dt.Slug + "/" + file.ID.String() + "/" + file.FileName, file
}

func TestFirmwareDownload(t *testing.T) {
	store := newFakeStore()
	server, cfg := testServer(t, store)
	path, _ := firmwareFixture(t, cfg, store)

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "firmware bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "fw-2.0.bin")
	assert.Equal(t, 1, store.downloads)
}

func TestFirmwareDownloadWrongSecret(t *testing.T) {
	store := newFakeStore()
	server, cfg := testServer(t, store)
	path, _ := firmwareFixture(t, cfg, store)

	wrong := "/df/0123456789abcd/wrong-secret" + path[len("/df/0123456789abcd/download-secret"):]
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, wrong, nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, store.downloads)
}

func TestFirmwareDownloadDisabledDevice(t *testing.T) {
	store := newFakeStore()
	server, cfg := testServer(t, store)
	path, _ := firmwareFixture(t, cfg, store)
	store.devices["0123456789abcd"].IsDisabled = true

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFirmwareDownloadMalformedPath(t *testing.T) {
	store := newFakeStore()
	server, _ := testServer(t, store)

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/df/short/x/y/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	store := newFakeStore()
	server, _ := testServer(t, store)

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	server.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedRouteAcceptsValidToken(t *testing.T) {
	store := newFakeStore()
	server, cfg := testServer(t, store)

	manager := auth.NewJWTManager(&cfg.JWT)
	user := &models.User{ID: uuid.New(), Email: "admin@example.com", IsAdmin: true}
	store.users[user.Email] = user
	access, _, err := manager.GenerateTokenPair(user)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	r.Header.Set("Authorization", "Bearer "+access)
	server.router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin@example.com")
}
