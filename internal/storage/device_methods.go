package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// ========== Device Methods ==========

const deviceColumns = `
    id, created_at, updated_at, device_type_id, name, uuid, hash_identifier,
    serial_number, imsi, imei, model, download_secret,
    reinstall_firmware1, reinstall_firmware2, reinstall_firmware3,
    reinstall_config1, reinstall_config2, reinstall_config3,
    last_seen_at, connection_count,
    reported_firmware1, reported_firmware2, reported_firmware3,
    reported_config_checksum1, reported_config_checksum2, reported_config_checksum3,
    local_ip, public_ip, rsrp, rsrq, operator, cell_id, vpn_ip,
    virtual_subnet_size, staging, device_variables, is_disabled`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	device := &models.Device{}
	err := row.Scan(
		&device.ID, &device.CreatedAt, &device.UpdatedAt, &device.DeviceTypeID,
		&device.Name, &device.UUID, &device.HashIdentifier,
		&device.SerialNumber, &device.IMSI, &device.IMEI, &device.Model,
		&device.DownloadSecret,
		&device.ReinstallFirmware[0], &device.ReinstallFirmware[1], &device.ReinstallFirmware[2],
		&device.ReinstallConfig[0], &device.ReinstallConfig[1], &device.ReinstallConfig[2],
		&device.LastSeenAt, &device.ConnectionCount,
		&device.ReportedFirmware[0], &device.ReportedFirmware[1], &device.ReportedFirmware[2],
		&device.ReportedConfigChecksums[0], &device.ReportedConfigChecksums[1], &device.ReportedConfigChecksums[2],
		&device.LocalIP, &device.PublicIP, &device.Rsrp, &device.Rsrq,
		&device.Operator, &device.CellID, &device.VPNIP,
		&device.VirtualSubnetSize, &device.Staging, &device.DeviceVariables, &device.IsDisabled,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return device, nil
}

// CreateDevice creates a new device
func (s *PostgresStore) CreateDevice(ctx context.Context, device *models.Device) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}

	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
        INSERT INTO devices (` + deviceColumns + `
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
            $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
            $29, $30, $31, $32, $33, $34, $35, $36, $37
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		device.ID, device.CreatedAt, device.UpdatedAt, device.DeviceTypeID,
		device.Name, device.UUID, device.HashIdentifier,
		device.SerialNumber, device.IMSI, device.IMEI, device.Model,
		device.DownloadSecret,
		device.ReinstallFirmware[0], device.ReinstallFirmware[1], device.ReinstallFirmware[2],
		device.ReinstallConfig[0], device.ReinstallConfig[1], device.ReinstallConfig[2],
		device.LastSeenAt, device.ConnectionCount,
		device.ReportedFirmware[0], device.ReportedFirmware[1], device.ReportedFirmware[2],
		device.ReportedConfigChecksums[0], device.ReportedConfigChecksums[1], device.ReportedConfigChecksums[2],
		device.LocalIP, device.PublicIP, device.Rsrp, device.Rsrq,
		device.Operator, device.CellID, device.VPNIP,
		device.VirtualSubnetSize, device.Staging, device.DeviceVariables, device.IsDisabled,
	)

	return mapError(err)
}

// GetDevice gets a device by id
func (s *PostgresStore) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, id))
}

// GetDeviceByUUID gets a device by its device UUID
func (s *PostgresStore) GetDeviceByUUID(ctx context.Context, deviceUUID string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE uuid = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, deviceUUID))
}

// GetDeviceByHashIdentifier gets a device by hash identifier
func (s *PostgresStore) GetDeviceByHashIdentifier(ctx context.Context, hash string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE hash_identifier = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, hash))
}

// GetDeviceBySerialNumber gets a device by serial number
func (s *PostgresStore) GetDeviceBySerialNumber(ctx context.Context, serial string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE serial_number = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, serial))
}

// GetDeviceByIMSI gets a device by IMSI
func (s *PostgresStore) GetDeviceByIMSI(ctx context.Context, imsi string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE imsi = $1`
	return scanDevice(s.getDB().QueryRowContext(ctx, query, imsi))
}

// UpdateDevice updates a device
func (s *PostgresStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	device.UpdatedAt = time.Now()

	query := `
        UPDATE devices SET
            updated_at = $2, device_type_id = $3, name = $4,
            serial_number = $5, imsi = $6, imei = $7, model = $8,
            download_secret = $9,
            reinstall_firmware1 = $10, reinstall_firmware2 = $11, reinstall_firmware3 = $12,
            reinstall_config1 = $13, reinstall_config2 = $14, reinstall_config3 = $15,
            last_seen_at = $16, connection_count = $17,
            reported_firmware1 = $18, reported_firmware2 = $19, reported_firmware3 = $20,
            reported_config_checksum1 = $21, reported_config_checksum2 = $22, reported_config_checksum3 = $23,
            local_ip = $24, public_ip = $25, rsrp = $26, rsrq = $27,
            operator = $28, cell_id = $29, vpn_ip = $30,
            virtual_subnet_size = $31, staging = $32, device_variables = $33, is_disabled = $34
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		device.ID, device.UpdatedAt, device.DeviceTypeID, device.Name,
		device.SerialNumber, device.IMSI, device.IMEI, device.Model,
		device.DownloadSecret,
		device.ReinstallFirmware[0], device.ReinstallFirmware[1], device.ReinstallFirmware[2],
		device.ReinstallConfig[0], device.ReinstallConfig[1], device.ReinstallConfig[2],
		device.LastSeenAt, device.ConnectionCount,
		device.ReportedFirmware[0], device.ReportedFirmware[1], device.ReportedFirmware[2],
		device.ReportedConfigChecksums[0], device.ReportedConfigChecksums[1], device.ReportedConfigChecksums[2],
		device.LocalIP, device.PublicIP, device.Rsrp, device.Rsrq,
		device.Operator, device.CellID, device.VPNIP,
		device.VirtualSubnetSize, device.Staging, device.DeviceVariables, device.IsDisabled,
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

// DeleteDevice deletes a device
func (s *PostgresStore) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
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

// ListDevices lists devices, optionally filtered by device type
func (s *PostgresStore) ListDevices(ctx context.Context, deviceTypeID *uuid.UUID, limit, offset int) ([]*models.Device, int64, error) {
	countQuery := `SELECT COUNT(*) FROM devices WHERE ($1::uuid IS NULL OR device_type_id = $1)`

	var total int64
	if err := s.getDB().QueryRowContext(ctx, countQuery, deviceTypeID).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	query := `
        SELECT ` + deviceColumns + `
        FROM devices
        WHERE ($1::uuid IS NULL OR device_type_id = $1)
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, deviceTypeID, limit, offset)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		devices = append(devices, device)
	}

	return devices, total, rows.Err()
}
