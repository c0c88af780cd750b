package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetd/fleet-server/internal/models"
)

func rotationFixture() (*memStore, *SecretRotationEngine, *RequestContext) {
	store := newMemStore()
	dt := store.addDeviceType(&models.DeviceType{Name: "router", Protocol: ProtocolRouter})

	rctx := testRequestContext(dt)
	rctx.Device = &models.Device{DeviceTypeID: dt.ID}
	rctx.Device.ID = newTestID()

	return store, NewSecretRotationEngine(store, testCryptoService()), rctx
}

func TestRotationGeneratesMissingSecret(t *testing.T) {
	store, engine, rctx := rotationFixture()
	policy := &models.DeviceTypeSecret{
		DeviceTypeID:  rctx.DeviceType.ID,
		Name:          "vpnPsk",
		Behavior:      models.SecretBehaviorGenerate,
		UseAsVariable: true,
		Length:        16,
	}
	policy.ID = newTestID()
	store.secretPolicies[rctx.DeviceType.ID] = []*models.DeviceTypeSecret{policy}

	rotated, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.True(t, rotated)

	secrets := store.secrets[rctx.Device.ID]
	require.Len(t, secrets, 1)
	assert.Equal(t, policy.ID, secrets[0].DeviceTypeSecretID)
	assert.NotEmpty(t, secrets[0].EncryptedValue)

	// A second run finds the secret present and not due
	rotated, err = engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.Len(t, store.secrets[rctx.Device.ID], 1)
}

func TestRotationSkipsStaticAndNonVariablePolicies(t *testing.T) {
	store, engine, rctx := rotationFixture()
	static := &models.DeviceTypeSecret{
		DeviceTypeID:  rctx.DeviceType.ID,
		Name:          "adminPassword",
		Behavior:      models.SecretBehaviorStatic,
		UseAsVariable: true,
	}
	static.ID = newTestID()
	hidden := &models.DeviceTypeSecret{
		DeviceTypeID:  rctx.DeviceType.ID,
		Name:          "internal",
		Behavior:      models.SecretBehaviorGenerate,
		UseAsVariable: false,
	}
	hidden.ID = newTestID()
	store.secretPolicies[rctx.DeviceType.ID] = []*models.DeviceTypeSecret{static, hidden}

	rotated, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.Empty(t, store.secrets[rctx.Device.ID])
}

func TestRotationRenewsDueSecret(t *testing.T) {
	store, engine, rctx := rotationFixture()
	policy := &models.DeviceTypeSecret{
		DeviceTypeID:   rctx.DeviceType.ID,
		Name:           "vpnPsk",
		Behavior:       models.SecretBehaviorGenerateRenew,
		UseAsVariable:  true,
		RenewAfterDays: 30,
	}
	policy.ID = newTestID()
	store.secretPolicies[rctx.DeviceType.ID] = []*models.DeviceTypeSecret{policy}

	stale := &models.DeviceSecret{
		DeviceID:           rctx.Device.ID,
		DeviceTypeSecretID: policy.ID,
		EncryptedValue:     []byte("old"),
		RenewedAt:          time.Now().AddDate(0, 0, -31),
	}
	stale.ID = newTestID()
	store.secrets[rctx.Device.ID] = []*models.DeviceSecret{stale}

	rotated, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.NotEqual(t, []byte("old"), stale.EncryptedValue)
	assert.WithinDuration(t, time.Now(), stale.RenewedAt, time.Minute)
}

func TestRotationRespectsRenewalWindow(t *testing.T) {
	store, engine, rctx := rotationFixture()
	policy := &models.DeviceTypeSecret{
		DeviceTypeID:   rctx.DeviceType.ID,
		Name:           "vpnPsk",
		Behavior:       models.SecretBehaviorGenerateRenew,
		UseAsVariable:  true,
		RenewAfterDays: 30,
	}
	policy.ID = newTestID()
	store.secretPolicies[rctx.DeviceType.ID] = []*models.DeviceTypeSecret{policy}

	fresh := &models.DeviceSecret{
		DeviceID:           rctx.Device.ID,
		DeviceTypeSecretID: policy.ID,
		EncryptedValue:     []byte("current"),
		RenewedAt:          time.Now().AddDate(0, 0, -5),
	}
	store.secrets[rctx.Device.ID] = []*models.DeviceSecret{fresh}

	rotated, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.Equal(t, []byte("current"), fresh.EncryptedValue)
}

func TestRotationForceRenewal(t *testing.T) {
	store, engine, rctx := rotationFixture()
	policy := &models.DeviceTypeSecret{
		DeviceTypeID:  rctx.DeviceType.ID,
		Name:          "vpnPsk",
		Behavior:      models.SecretBehaviorGenerateRenew,
		UseAsVariable: true,
	}
	policy.ID = newTestID()
	store.secretPolicies[rctx.DeviceType.ID] = []*models.DeviceTypeSecret{policy}

	forced := &models.DeviceSecret{
		DeviceID:           rctx.Device.ID,
		DeviceTypeSecretID: policy.ID,
		EncryptedValue:     []byte("current"),
		RenewedAt:          time.Now(),
		ForceRenewal:       true,
	}
	store.secrets[rctx.Device.ID] = []*models.DeviceSecret{forced}

	rotated, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.False(t, forced.ForceRenewal)
	assert.NotEqual(t, []byte("current"), forced.EncryptedValue)
}
