package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetd/fleet-server/internal/models"
)

func strptr(s string) *string { return &s }

func identityFixture(source IdentitySource) (*memStore, *IdentityResolver, *RequestContext) {
	store := newMemStore()
	dt := store.addDeviceType(&models.DeviceType{Name: "router", Protocol: ProtocolRouter, HasGSM: true})
	return store, NewIdentityResolver(store, source), testRequestContext(dt)
}

func TestResolveRouterBySerial(t *testing.T) {
	store, resolver, rctx := identityFixture(IdentitySourceSerial)
	existing := store.addDevice(&models.Device{Name: "unit-1", SerialNumber: strptr("RX100")})

	rctx.Payload.SerialNumber = "RX100"
	device, err := resolver.ResolveRouter(context.Background(), rctx)
	require.NoError(t, err)
	require.NotNil(t, device)
	assert.Equal(t, existing.ID, device.ID)
}

func TestResolveRouterUnknownReturnsNil(t *testing.T) {
	_, resolver, rctx := identityFixture(IdentitySourceSerial)

	rctx.Payload.SerialNumber = "RX999"
	device, err := resolver.ResolveRouter(context.Background(), rctx)
	require.NoError(t, err)
	assert.Nil(t, device)

	// Missing authoritative identifier also resolves to nothing
	rctx.Payload.SerialNumber = ""
	rctx.Payload.IMSI = "262011234567890"
	device, err = resolver.ResolveRouter(context.Background(), rctx)
	require.NoError(t, err)
	assert.Nil(t, device)
}

func TestResolveRouterReclaimsMovedIMSI(t *testing.T) {
	store, resolver, rctx := identityFixture(IdentitySourceSerial)
	a := store.addDevice(&models.Device{Name: "unit-a", SerialNumber: strptr("S1"), IMSI: strptr("I1")})
	b := store.addDevice(&models.Device{Name: "unit-b", SerialNumber: strptr("S2"), IMSI: strptr("I2")})

	// The SIM from unit-b shows up in unit-a
	rctx.Payload.SerialNumber = "S1"
	rctx.Payload.IMSI = "I2"
	device, err := resolver.ResolveRouter(context.Background(), rctx)
	require.NoError(t, err)
	require.NotNil(t, device)
	assert.Equal(t, a.ID, device.ID)
	require.NotNil(t, device.IMSI)
	assert.Equal(t, "I2", *device.IMSI)

	stored, err := store.GetDevice(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.IMSI)
	// unit-b keeps its serial, so it stays valid
	assert.Equal(t, "unit-b", stored.Name)
}

func TestResolveRouterInvalidatesDeviceLeftWithoutIdentifiers(t *testing.T) {
	store, resolver, rctx := identityFixture(IdentitySourceIMSI)
	a := store.addDevice(&models.Device{Name: "unit-a", IMSI: strptr("I1")})
	b := store.addDevice(&models.Device{Name: "unit-b", SerialNumber: strptr("S2")})

	// unit-a reports unit-b's serial; unit-b loses its only identifier
	rctx.Payload.IMSI = "I1"
	rctx.Payload.SerialNumber = "S2"
	device, err := resolver.ResolveRouter(context.Background(), rctx)
	require.NoError(t, err)
	require.NotNil(t, device)
	assert.Equal(t, a.ID, device.ID)
	require.NotNil(t, device.SerialNumber)
	assert.Equal(t, "S2", *device.SerialNumber)

	stored, err := store.GetDevice(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.SerialNumber)
	assert.Equal(t, "INVALID S2", stored.Name)
}

func TestCreateDeviceGatesGSMIdentifiers(t *testing.T) {
	store, resolver, rctx := identityFixture(IdentitySourceSerial)
	rctx.Payload.SerialNumber = "RX200"
	rctx.Payload.IMSI = "262010000000001"
	rctx.Payload.IMEI = "356938035643809"
	rctx.Payload.Model = "RX1400"

	device, err := resolver.CreateDevice(context.Background(), rctx, "RX200")
	require.NoError(t, err)
	assert.Equal(t, "RX200", device.Name)
	assert.Len(t, device.HashIdentifier, 14)
	assert.NotEmpty(t, device.UUID)
	assert.NotEmpty(t, device.DownloadSecret)
	require.NotNil(t, device.IMSI)
	require.NotNil(t, device.IMEI)

	stored, err := store.GetDevice(context.Background(), device.ID)
	require.NoError(t, err)
	assert.Equal(t, device.UUID, stored.UUID)

	// Without GSM the cellular identifiers are dropped
	rctx.DeviceType.HasGSM = false
	device, err = resolver.CreateDevice(context.Background(), rctx, "RX201")
	require.NoError(t, err)
	assert.Nil(t, device.IMSI)
	assert.Nil(t, device.IMEI)
	require.NotNil(t, device.SerialNumber)
}

func TestIdentifierGenerationBoundedRetry(t *testing.T) {
	store, resolver, _ := identityFixture(IdentitySourceSerial)
	store.everythingTaken = true

	_, err := resolver.GenerateDeviceUUID(context.Background())
	assert.ErrorIs(t, err, ErrIdentifierSpaceExhausted)

	_, err = resolver.GenerateHashIdentifier(context.Background())
	assert.ErrorIs(t, err, ErrIdentifierSpaceExhausted)

	_, err = resolver.GenerateTransactionID(context.Background())
	assert.ErrorIs(t, err, ErrIdentifierSpaceExhausted)
}

func TestIdentifierGenerationRecoversAfterCollision(t *testing.T) {
	store, resolver, _ := identityFixture(IdentitySourceSerial)

	store.collisionsLeft = 1
	id, err := resolver.GenerateDeviceUUID(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	store.collisionsLeft = 1
	hash, err := resolver.GenerateHashIdentifier(context.Background())
	require.NoError(t, err)
	assert.Len(t, hash, 14)

	store.collisionsLeft = 1
	tx, err := resolver.GenerateTransactionID(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, tx)
}

func TestGenerateHashIdentifierShape(t *testing.T) {
	_, resolver, _ := identityFixture(IdentitySourceSerial)

	hash, err := resolver.GenerateHashIdentifier(context.Background())
	require.NoError(t, err)
	assert.Len(t, hash, 14)
	for _, c := range hash {
		assert.Contains(t, "0123456789abcdef", string(c))
	}
}

func TestFallbackIdentifier(t *testing.T) {
	id := FallbackIdentifier()
	assert.True(t, strings.HasPrefix(id, "Unknown-"))
	assert.NotEqual(t, id, FallbackIdentifier())
}

func TestNewIdentityResolverDefaultsToSerial(t *testing.T) {
	store := newMemStore()
	assert.Equal(t, IdentitySourceSerial, NewIdentityResolver(store, "bogus").Source())
	assert.Equal(t, IdentitySourceIMSI, NewIdentityResolver(store, IdentitySourceIMSI).Source())
}
