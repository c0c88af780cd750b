package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// ========== Firmware File Methods ==========

// CreateFirmwareFile creates firmware artifact metadata
func (s *PostgresStore) CreateFirmwareFile(ctx context.Context, file *models.FirmwareFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}

	now := time.Now()
	file.CreatedAt = now
	file.UpdatedAt = now

	query := `
        INSERT INTO firmware_files (
            id, created_at, updated_at, device_type_id, file_name, version,
            size, checksum, storage_path, download_count
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.getDB().ExecContext(ctx, query,
		file.ID, file.CreatedAt, file.UpdatedAt, file.DeviceTypeID,
		file.FileName, file.Version, file.Size, file.Checksum,
		file.StoragePath, file.DownloadCount)

	return mapError(err)
}

// GetFirmwareFile gets firmware metadata by id
func (s *PostgresStore) GetFirmwareFile(ctx context.Context, id uuid.UUID) (*models.FirmwareFile, error) {
	query := `
        SELECT id, created_at, updated_at, device_type_id, file_name, version,
               size, checksum, storage_path, download_count
        FROM firmware_files WHERE id = $1`

	file := &models.FirmwareFile{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&file.ID, &file.CreatedAt, &file.UpdatedAt, &file.DeviceTypeID,
		&file.FileName, &file.Version, &file.Size, &file.Checksum,
		&file.StoragePath, &file.DownloadCount)
	if err != nil {
		return nil, mapError(err)
	}

	return file, nil
}

// IncrementFirmwareDownloadCount bumps the download counter
func (s *PostgresStore) IncrementFirmwareDownloadCount(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE firmware_files SET download_count = download_count + 1 WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query, id)
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
