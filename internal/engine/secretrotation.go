package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
	"github.com/fleetd/fleet-server/pkg/crypto"
)

// defaultSecretLength applies when a policy does not set one
const defaultSecretLength = 32

// SecretRotationEngine renews due device secrets and generates first-time
// values for generate-kind policies without a row yet. Every change is
// persisted immediately so a partial failure keeps earlier rotations.
type SecretRotationEngine struct {
	store  Store
	crypto *crypto.Service
}

// NewSecretRotationEngine creates a secret rotation engine
func NewSecretRotationEngine(store Store, cryptoSvc *crypto.Service) *SecretRotationEngine {
	return &SecretRotationEngine{store: store, crypto: cryptoSvc}
}

// secretDue applies the renewal policy to one existing secret
func secretDue(policy *models.DeviceTypeSecret, secret *models.DeviceSecret, now time.Time) bool {
	if secret.ForceRenewal {
		return true
	}
	if !policy.Behavior.IsRenewKind() || policy.RenewAfterDays <= 0 {
		return false
	}
	return secret.RenewedAt.AddDate(0, 0, policy.RenewAfterDays).Before(now)
}

// Run evaluates every variable-exposed secret policy of the device type. It
// returns whether any secret was generated or renewed.
func (e *SecretRotationEngine) Run(ctx context.Context, rctx *RequestContext) (bool, error) {
	policies, err := e.store.ListDeviceTypeSecrets(ctx, rctx.DeviceType.ID)
	if err != nil {
		return false, fmt.Errorf("list secret policies: %w", err)
	}

	existing, err := e.store.ListDeviceSecrets(ctx, rctx.Device.ID)
	if err != nil {
		return false, fmt.Errorf("list device secrets: %w", err)
	}
	byPolicy := make(map[uuid.UUID]*models.DeviceSecret, len(existing))
	for _, s := range existing {
		byPolicy[s.DeviceTypeSecretID] = s
	}

	now := time.Now()
	rotated := false

	for _, policy := range policies {
		if !policy.UseAsVariable {
			continue
		}

		secret, exists := byPolicy[policy.ID]

		switch {
		case !exists && policy.Behavior.IsGenerateKind():
			if err := e.generate(ctx, rctx, policy, now); err != nil {
				rctx.Log.Warning("secret.generation_failed",
					fmt.Sprintf("generating secret %s failed: %v", policy.Name, err))
				continue
			}
			rotated = true

		case exists && secretDue(policy, secret, now):
			if err := e.renew(ctx, rctx, policy, secret, now); err != nil {
				rctx.Log.Warning("secret.renewal_failed",
					fmt.Sprintf("renewing secret %s failed: %v", policy.Name, err))
				continue
			}
			rotated = true
		}
	}

	return rotated, nil
}

// generate creates the first value for a policy on this device
func (e *SecretRotationEngine) generate(ctx context.Context, rctx *RequestContext, policy *models.DeviceTypeSecret, now time.Time) error {
	encrypted, err := e.newEncryptedValue(policy)
	if err != nil {
		return err
	}

	secret := &models.DeviceSecret{
		DeviceID:           rctx.Device.ID,
		DeviceTypeSecretID: policy.ID,
		EncryptedValue:     encrypted,
		RenewedAt:          now,
	}
	if err := e.store.CreateDeviceSecret(ctx, secret); err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	rctx.Log.Record(models.CommLevelInfo, "secret.generated",
		fmt.Sprintf("generated secret %s", policy.Name),
		models.Variables{"secret": policy.Name, "hadPreviousValue": false})
	return nil
}

// renew replaces the value of an existing secret
func (e *SecretRotationEngine) renew(ctx context.Context, rctx *RequestContext, policy *models.DeviceTypeSecret, secret *models.DeviceSecret, now time.Time) error {
	encrypted, err := e.newEncryptedValue(policy)
	if err != nil {
		return err
	}

	secret.EncryptedValue = encrypted
	secret.RenewedAt = now
	secret.ForceRenewal = false
	if err := e.store.UpdateDeviceSecret(ctx, secret); err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	rctx.Log.Record(models.CommLevelInfo, "secret.renewed",
		fmt.Sprintf("renewed secret %s", policy.Name),
		models.Variables{"secret": policy.Name, "hadPreviousValue": true})
	return nil
}

func (e *SecretRotationEngine) newEncryptedValue(policy *models.DeviceTypeSecret) ([]byte, error) {
	length := policy.Length
	if length <= 0 {
		length = defaultSecretLength
	}
	value, err := crypto.GenerateRandomString(length)
	if err != nil {
		return nil, fmt.Errorf("generate value: %w", err)
	}
	return e.crypto.EncryptString(value)
}
