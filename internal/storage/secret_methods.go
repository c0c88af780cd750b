package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// ========== Device Type Secret Methods ==========

// CreateDeviceTypeSecret creates a new device type secret policy
func (s *PostgresStore) CreateDeviceTypeSecret(ctx context.Context, dts *models.DeviceTypeSecret) error {
	if dts.ID == uuid.Nil {
		dts.ID = uuid.New()
	}

	now := time.Now()
	dts.CreatedAt = now
	dts.UpdatedAt = now

	query := `
        INSERT INTO device_type_secrets (
            id, created_at, updated_at, device_type_id, name, behavior,
            use_as_variable, renew_after_days, length
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.getDB().ExecContext(ctx, query,
		dts.ID, dts.CreatedAt, dts.UpdatedAt, dts.DeviceTypeID, dts.Name,
		dts.Behavior, dts.UseAsVariable, dts.RenewAfterDays, dts.Length)

	return mapError(err)
}

// ListDeviceTypeSecrets lists secret policies for a device type
func (s *PostgresStore) ListDeviceTypeSecrets(ctx context.Context, deviceTypeID uuid.UUID) ([]*models.DeviceTypeSecret, error) {
	query := `
        SELECT id, created_at, updated_at, device_type_id, name, behavior,
               use_as_variable, renew_after_days, length
        FROM device_type_secrets
        WHERE device_type_id = $1
        ORDER BY name`

	rows, err := s.getDB().QueryContext(ctx, query, deviceTypeID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var secrets []*models.DeviceTypeSecret
	for rows.Next() {
		dts := &models.DeviceTypeSecret{}
		err := rows.Scan(
			&dts.ID, &dts.CreatedAt, &dts.UpdatedAt, &dts.DeviceTypeID, &dts.Name,
			&dts.Behavior, &dts.UseAsVariable, &dts.RenewAfterDays, &dts.Length)
		if err != nil {
			return nil, mapError(err)
		}
		secrets = append(secrets, dts)
	}

	return secrets, rows.Err()
}

// ========== Device Secret Methods ==========

const deviceSecretColumns = `
    id, created_at, updated_at, device_id, device_type_secret_id,
    encrypted_value, renewed_at, force_renewal`

func scanDeviceSecret(row rowScanner) (*models.DeviceSecret, error) {
	secret := &models.DeviceSecret{}
	err := row.Scan(
		&secret.ID, &secret.CreatedAt, &secret.UpdatedAt, &secret.DeviceID,
		&secret.DeviceTypeSecretID, &secret.EncryptedValue,
		&secret.RenewedAt, &secret.ForceRenewal,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return secret, nil
}

// CreateDeviceSecret creates a new device secret
func (s *PostgresStore) CreateDeviceSecret(ctx context.Context, secret *models.DeviceSecret) error {
	if secret.ID == uuid.Nil {
		secret.ID = uuid.New()
	}

	now := time.Now()
	secret.CreatedAt = now
	secret.UpdatedAt = now

	query := `
        INSERT INTO device_secrets (` + deviceSecretColumns + `
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.getDB().ExecContext(ctx, query,
		secret.ID, secret.CreatedAt, secret.UpdatedAt, secret.DeviceID,
		secret.DeviceTypeSecretID, secret.EncryptedValue,
		secret.RenewedAt, secret.ForceRenewal,
	)

	return mapError(err)
}

// GetDeviceSecret gets the device secret for a policy
func (s *PostgresStore) GetDeviceSecret(ctx context.Context, deviceID, deviceTypeSecretID uuid.UUID) (*models.DeviceSecret, error) {
	query := `
        SELECT ` + deviceSecretColumns + `
        FROM device_secrets
        WHERE device_id = $1 AND device_type_secret_id = $2`
	return scanDeviceSecret(s.getDB().QueryRowContext(ctx, query, deviceID, deviceTypeSecretID))
}

// ListDeviceSecrets lists a device's secrets
func (s *PostgresStore) ListDeviceSecrets(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceSecret, error) {
	query := `SELECT ` + deviceSecretColumns + ` FROM device_secrets WHERE device_id = $1`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var secrets []*models.DeviceSecret
	for rows.Next() {
		secret, err := scanDeviceSecret(rows)
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, secret)
	}

	return secrets, rows.Err()
}

// UpdateDeviceSecret updates a device secret
func (s *PostgresStore) UpdateDeviceSecret(ctx context.Context, secret *models.DeviceSecret) error {
	secret.UpdatedAt = time.Now()

	query := `
        UPDATE device_secrets SET
            updated_at = $2, encrypted_value = $3, renewed_at = $4, force_renewal = $5
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		secret.ID, secret.UpdatedAt, secret.EncryptedValue,
		secret.RenewedAt, secret.ForceRenewal,
	)
	if err != nil {
		return mapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
