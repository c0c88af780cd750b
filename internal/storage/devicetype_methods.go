package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// ========== Device Type Methods ==========

const deviceTypeColumns = `
    id, created_at, updated_at, name, slug, protocol, is_enabled, route_prefix,
    firmware_slot1, firmware_slot2, firmware_slot3,
    config_slot1, config_slot2, config_slot3,
    always_reinstall_config1, always_reinstall_config2, always_reinstall_config3,
    has_vpn, has_certificates, has_gsm, has_endpoint_devices, has_device_commands,
    field_requirements, variable_order, rsrp_gating_enabled, required_min_rsrp,
    vpn_certificate_type_configured, description`

func scanDeviceType(row rowScanner) (*models.DeviceType, error) {
	dt := &models.DeviceType{}
	var fieldReqs, varOrder []byte

	err := row.Scan(
		&dt.ID, &dt.CreatedAt, &dt.UpdatedAt, &dt.Name, &dt.Slug, &dt.Protocol,
		&dt.IsEnabled, &dt.RoutePrefix,
		&dt.FirmwareSlots[0], &dt.FirmwareSlots[1], &dt.FirmwareSlots[2],
		&dt.ConfigSlots[0], &dt.ConfigSlots[1], &dt.ConfigSlots[2],
		&dt.AlwaysReinstallConfig[0], &dt.AlwaysReinstallConfig[1], &dt.AlwaysReinstallConfig[2],
		&dt.HasVPN, &dt.HasCertificates, &dt.HasGSM, &dt.HasEndpointDevices, &dt.HasDeviceCommands,
		&fieldReqs, &varOrder, &dt.RsrpGatingEnabled, &dt.RequiredMinRsrp,
		&dt.VPNCertificateTypeConfigured, &dt.Description,
	)
	if err != nil {
		return nil, mapError(err)
	}

	if len(fieldReqs) > 0 {
		if err := json.Unmarshal(fieldReqs, &dt.FieldRequirements); err != nil {
			return nil, ErrInvalidData
		}
	}
	if len(varOrder) > 0 {
		if err := json.Unmarshal(varOrder, &dt.VariableOrder); err != nil {
			return nil, ErrInvalidData
		}
	}

	return dt, nil
}

// CreateDeviceType creates a new device type
func (s *PostgresStore) CreateDeviceType(ctx context.Context, dt *models.DeviceType) error {
	if dt.ID == uuid.Nil {
		dt.ID = uuid.New()
	}

	now := time.Now()
	dt.CreatedAt = now
	dt.UpdatedAt = now

	fieldReqs, err := json.Marshal(dt.FieldRequirements)
	if err != nil {
		return ErrInvalidData
	}
	varOrder, err := json.Marshal(dt.VariableOrder)
	if err != nil {
		return ErrInvalidData
	}

	query := `
        INSERT INTO device_types (` + deviceTypeColumns + `
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
            $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28
        )`

	_, err = s.getDB().ExecContext(ctx, query,
		dt.ID, dt.CreatedAt, dt.UpdatedAt, dt.Name, dt.Slug, dt.Protocol,
		dt.IsEnabled, dt.RoutePrefix,
		dt.FirmwareSlots[0], dt.FirmwareSlots[1], dt.FirmwareSlots[2],
		dt.ConfigSlots[0], dt.ConfigSlots[1], dt.ConfigSlots[2],
		dt.AlwaysReinstallConfig[0], dt.AlwaysReinstallConfig[1], dt.AlwaysReinstallConfig[2],
		dt.HasVPN, dt.HasCertificates, dt.HasGSM, dt.HasEndpointDevices, dt.HasDeviceCommands,
		fieldReqs, varOrder, dt.RsrpGatingEnabled, dt.RequiredMinRsrp,
		dt.VPNCertificateTypeConfigured, dt.Description,
	)

	return mapError(err)
}

// GetDeviceType gets a device type by id
func (s *PostgresStore) GetDeviceType(ctx context.Context, id uuid.UUID) (*models.DeviceType, error) {
	query := `SELECT ` + deviceTypeColumns + ` FROM device_types WHERE id = $1`
	return scanDeviceType(s.getDB().QueryRowContext(ctx, query, id))
}

// GetDeviceTypeBySlug gets a device type by slug
func (s *PostgresStore) GetDeviceTypeBySlug(ctx context.Context, slug string) (*models.DeviceType, error) {
	query := `SELECT ` + deviceTypeColumns + ` FROM device_types WHERE slug = $1`
	return scanDeviceType(s.getDB().QueryRowContext(ctx, query, slug))
}

// UpdateDeviceType updates a device type
func (s *PostgresStore) UpdateDeviceType(ctx context.Context, dt *models.DeviceType) error {
	dt.UpdatedAt = time.Now()

	fieldReqs, err := json.Marshal(dt.FieldRequirements)
	if err != nil {
		return ErrInvalidData
	}
	varOrder, err := json.Marshal(dt.VariableOrder)
	if err != nil {
		return ErrInvalidData
	}

	query := `
        UPDATE device_types SET
            updated_at = $2, name = $3, slug = $4, protocol = $5, is_enabled = $6,
            route_prefix = $7,
            firmware_slot1 = $8, firmware_slot2 = $9, firmware_slot3 = $10,
            config_slot1 = $11, config_slot2 = $12, config_slot3 = $13,
            always_reinstall_config1 = $14, always_reinstall_config2 = $15, always_reinstall_config3 = $16,
            has_vpn = $17, has_certificates = $18, has_gsm = $19,
            has_endpoint_devices = $20, has_device_commands = $21,
            field_requirements = $22, variable_order = $23,
            rsrp_gating_enabled = $24, required_min_rsrp = $25,
            vpn_certificate_type_configured = $26, description = $27
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		dt.ID, dt.UpdatedAt, dt.Name, dt.Slug, dt.Protocol, dt.IsEnabled,
		dt.RoutePrefix,
		dt.FirmwareSlots[0], dt.FirmwareSlots[1], dt.FirmwareSlots[2],
		dt.ConfigSlots[0], dt.ConfigSlots[1], dt.ConfigSlots[2],
		dt.AlwaysReinstallConfig[0], dt.AlwaysReinstallConfig[1], dt.AlwaysReinstallConfig[2],
		dt.HasVPN, dt.HasCertificates, dt.HasGSM, dt.HasEndpointDevices, dt.HasDeviceCommands,
		fieldReqs, varOrder, dt.RsrpGatingEnabled, dt.RequiredMinRsrp,
		dt.VPNCertificateTypeConfigured, dt.Description,
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

// DeleteDeviceType deletes a device type
func (s *PostgresStore) DeleteDeviceType(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, `DELETE FROM device_types WHERE id = $1`, id)
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

// ListDeviceTypes lists device types
func (s *PostgresStore) ListDeviceTypes(ctx context.Context, enabledOnly bool, limit, offset int) ([]*models.DeviceType, int64, error) {
	countQuery := `SELECT COUNT(*) FROM device_types WHERE (NOT $1 OR is_enabled)`

	var total int64
	if err := s.getDB().QueryRowContext(ctx, countQuery, enabledOnly).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	query := `
        SELECT ` + deviceTypeColumns + `
        FROM device_types
        WHERE (NOT $1 OR is_enabled)
        ORDER BY name
        LIMIT NULLIF($2, 0) OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, enabledOnly, limit, offset)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var types []*models.DeviceType
	for rows.Next() {
		dt, err := scanDeviceType(rows)
		if err != nil {
			return nil, 0, err
		}
		types = append(types, dt)
	}

	return types, total, rows.Err()
}
