package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// ========== Communication Log Methods ==========

// CreateCommunicationLog appends a communication log entry
func (s *PostgresStore) CreateCommunicationLog(ctx context.Context, entry *models.CommunicationLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO communication_logs (
            id, created_at, device_id, device_type_id, request_id,
            level, code, message, details
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.getDB().ExecContext(ctx, query,
		entry.ID, entry.CreatedAt, entry.DeviceID, entry.DeviceTypeID,
		entry.RequestID, entry.Level, entry.Code, entry.Message, entry.Details)

	return mapError(err)
}

// ListCommunicationLogs lists communication log entries matching the filters
func (s *PostgresStore) ListCommunicationLogs(ctx context.Context, filters CommunicationLogFilters, limit, offset int) ([]*models.CommunicationLog, int64, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argn := 0

	addArg := func(clause string, value interface{}) {
		argn++
		where += fmt.Sprintf(" AND %s = $%d", clause, argn)
		args = append(args, value)
	}

	if filters.DeviceID != nil {
		addArg("device_id", *filters.DeviceID)
	}
	if filters.DeviceTypeID != nil {
		addArg("device_type_id", *filters.DeviceTypeID)
	}
	if filters.RequestID != nil {
		addArg("request_id", *filters.RequestID)
	}
	if filters.Level != nil {
		addArg("level", *filters.Level)
	}
	if filters.StartTime != nil {
		argn++
		where += fmt.Sprintf(" AND created_at >= $%d", argn)
		args = append(args, *filters.StartTime)
	}
	if filters.EndTime != nil {
		argn++
		where += fmt.Sprintf(" AND created_at <= $%d", argn)
		args = append(args, *filters.EndTime)
	}

	var total int64
	if err := s.getDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM communication_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	query := `
        SELECT id, created_at, device_id, device_type_id, request_id,
               level, code, message, details
        FROM communication_logs` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argn+1, argn+2)
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var entries []*models.CommunicationLog
	for rows.Next() {
		entry := &models.CommunicationLog{}
		err := rows.Scan(
			&entry.ID, &entry.CreatedAt, &entry.DeviceID, &entry.DeviceTypeID,
			&entry.RequestID, &entry.Level, &entry.Code, &entry.Message, &entry.Details)
		if err != nil {
			return nil, 0, mapError(err)
		}
		entries = append(entries, entry)
	}

	return entries, total, rows.Err()
}
