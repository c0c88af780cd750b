package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// ========== Template Version Methods ==========

// templateSlots is the JSON shape firmware/config assignments are stored in
type templateSlots struct {
	Firmware [models.SlotCount]*models.FirmwareAssignment `json:"firmware"`
	Configs  [models.SlotCount]*models.ConfigAssignment   `json:"configs"`
}

// CreateTemplateVersion creates a new template version
func (s *PostgresStore) CreateTemplateVersion(ctx context.Context, tv *models.TemplateVersion) error {
	if tv.ID == uuid.Nil {
		tv.ID = uuid.New()
	}

	now := time.Now()
	tv.CreatedAt = now
	tv.UpdatedAt = now

	slots, err := json.Marshal(templateSlots{Firmware: tv.Firmware, Configs: tv.Configs})
	if err != nil {
		return ErrInvalidData
	}

	endpoints, err := json.Marshal(tv.EndpointDevices)
	if err != nil {
		return ErrInvalidData
	}

	masquerades, err := json.Marshal(tv.Masquerades)
	if err != nil {
		return ErrInvalidData
	}

	query := `
        INSERT INTO template_versions (
            id, created_at, updated_at, device_type_id, staging,
            slots, endpoint_devices, masquerades, variables
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.getDB().ExecContext(ctx, query,
		tv.ID, tv.CreatedAt, tv.UpdatedAt, tv.DeviceTypeID, tv.Staging,
		slots, endpoints, masquerades, tv.Variables)

	return mapError(err)
}

// GetTemplateVersion gets the template version for a device type and stage
func (s *PostgresStore) GetTemplateVersion(ctx context.Context, deviceTypeID uuid.UUID, staging bool) (*models.TemplateVersion, error) {
	query := `
        SELECT id, created_at, updated_at, device_type_id, staging,
               slots, endpoint_devices, masquerades, variables
        FROM template_versions
        WHERE device_type_id = $1 AND staging = $2
        ORDER BY created_at DESC
        LIMIT 1`

	tv := &models.TemplateVersion{}
	var slots, endpoints, masquerades []byte

	err := s.getDB().QueryRowContext(ctx, query, deviceTypeID, staging).Scan(
		&tv.ID, &tv.CreatedAt, &tv.UpdatedAt, &tv.DeviceTypeID, &tv.Staging,
		&slots, &endpoints, &masquerades, &tv.Variables,
	)
	if err != nil {
		return nil, mapError(err)
	}

	var ts templateSlots
	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &ts); err != nil {
			return nil, ErrInvalidData
		}
	}
	tv.Firmware = ts.Firmware
	tv.Configs = ts.Configs

	if len(endpoints) > 0 {
		if err := json.Unmarshal(endpoints, &tv.EndpointDevices); err != nil {
			return nil, ErrInvalidData
		}
	}
	if len(masquerades) > 0 {
		if err := json.Unmarshal(masquerades, &tv.Masquerades); err != nil {
			return nil, ErrInvalidData
		}
	}

	return tv, nil
}
