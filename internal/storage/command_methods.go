package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// ========== Device Command Methods ==========

const deviceCommandColumns = `
    id, created_at, updated_at, device_id, transaction_id, command, status,
    sent_at, acked_at`

func scanDeviceCommand(row rowScanner) (*models.DeviceCommand, error) {
	cmd := &models.DeviceCommand{}
	err := row.Scan(
		&cmd.ID, &cmd.CreatedAt, &cmd.UpdatedAt, &cmd.DeviceID,
		&cmd.TransactionID, &cmd.Command, &cmd.Status, &cmd.SentAt, &cmd.AckedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return cmd, nil
}

// CreateDeviceCommand queues a new device command
func (s *PostgresStore) CreateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error {
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}

	now := time.Now()
	cmd.CreatedAt = now
	cmd.UpdatedAt = now

	query := `
        INSERT INTO device_commands (` + deviceCommandColumns + `
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.getDB().ExecContext(ctx, query,
		cmd.ID, cmd.CreatedAt, cmd.UpdatedAt, cmd.DeviceID,
		cmd.TransactionID, cmd.Command, cmd.Status, cmd.SentAt, cmd.AckedAt,
	)

	return mapError(err)
}

// GetDeviceCommandByTransactionID gets a command by its transaction id
func (s *PostgresStore) GetDeviceCommandByTransactionID(ctx context.Context, transactionID string) (*models.DeviceCommand, error) {
	query := `SELECT ` + deviceCommandColumns + ` FROM device_commands WHERE transaction_id = $1`
	return scanDeviceCommand(s.getDB().QueryRowContext(ctx, query, transactionID))
}

// ListPendingDeviceCommands lists commands waiting for delivery to a device
func (s *PostgresStore) ListPendingDeviceCommands(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceCommand, error) {
	query := `
        SELECT ` + deviceCommandColumns + `
        FROM device_commands
        WHERE device_id = $1 AND status = $2
        ORDER BY created_at`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID, models.CommandStatusPending)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var commands []*models.DeviceCommand
	for rows.Next() {
		cmd, err := scanDeviceCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}

	return commands, rows.Err()
}

// UpdateDeviceCommand updates a device command
func (s *PostgresStore) UpdateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error {
	cmd.UpdatedAt = time.Now()

	query := `
        UPDATE device_commands SET
            updated_at = $2, status = $3, sent_at = $4, acked_at = $5
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		cmd.ID, cmd.UpdatedAt, cmd.Status, cmd.SentAt, cmd.AckedAt)
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
