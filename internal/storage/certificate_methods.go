package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// ========== Certificate Type Methods ==========

// CreateCertificateType creates a new certificate type
func (s *PostgresStore) CreateCertificateType(ctx context.Context, ct *models.CertificateType) error {
	if ct.ID == uuid.Nil {
		ct.ID = uuid.New()
	}

	now := time.Now()
	ct.CreatedAt = now
	ct.UpdatedAt = now

	query := `
        INSERT INTO certificate_types (id, created_at, updated_at, name, category, enable_subject_alt_name)
        VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.getDB().ExecContext(ctx, query,
		ct.ID, ct.CreatedAt, ct.UpdatedAt, ct.Name, ct.Category, ct.EnableSubjectAltName)

	return mapError(err)
}

// GetCertificateType gets a certificate type by id
func (s *PostgresStore) GetCertificateType(ctx context.Context, id uuid.UUID) (*models.CertificateType, error) {
	query := `
        SELECT id, created_at, updated_at, name, category, enable_subject_alt_name
        FROM certificate_types WHERE id = $1`

	ct := &models.CertificateType{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&ct.ID, &ct.CreatedAt, &ct.UpdatedAt, &ct.Name, &ct.Category, &ct.EnableSubjectAltName)
	if err != nil {
		return nil, mapError(err)
	}

	return ct, nil
}

// ListCertificateTypes lists all certificate types
func (s *PostgresStore) ListCertificateTypes(ctx context.Context) ([]*models.CertificateType, error) {
	query := `
        SELECT id, created_at, updated_at, name, category, enable_subject_alt_name
        FROM certificate_types ORDER BY name`

	rows, err := s.getDB().QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var types []*models.CertificateType
	for rows.Next() {
		ct := &models.CertificateType{}
		if err := rows.Scan(&ct.ID, &ct.CreatedAt, &ct.UpdatedAt, &ct.Name, &ct.Category, &ct.EnableSubjectAltName); err != nil {
			return nil, mapError(err)
		}
		types = append(types, ct)
	}

	return types, rows.Err()
}

// CreateDeviceTypeCertificateType binds a certificate type to a device type
func (s *PostgresStore) CreateDeviceTypeCertificateType(ctx context.Context, dtct *models.DeviceTypeCertificateType) error {
	if dtct.ID == uuid.Nil {
		dtct.ID = uuid.New()
	}

	now := time.Now()
	dtct.CreatedAt = now
	dtct.UpdatedAt = now

	query := `
        INSERT INTO device_type_certificate_types (
            id, created_at, updated_at, device_type_id, certificate_type_id,
            auto_renew, auto_renew_days_before, variable_name, available
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.getDB().ExecContext(ctx, query,
		dtct.ID, dtct.CreatedAt, dtct.UpdatedAt, dtct.DeviceTypeID, dtct.CertificateTypeID,
		dtct.AutoRenew, dtct.AutoRenewDaysBefore, dtct.VariableName, dtct.Available)

	return mapError(err)
}

// ListDeviceTypeCertificateTypes lists certificate type assignments for a
// device type with the certificate type joined in.
func (s *PostgresStore) ListDeviceTypeCertificateTypes(ctx context.Context, deviceTypeID uuid.UUID) ([]*models.DeviceTypeCertificateType, error) {
	query := `
        SELECT dtct.id, dtct.created_at, dtct.updated_at, dtct.device_type_id,
               dtct.certificate_type_id, dtct.auto_renew, dtct.auto_renew_days_before,
               dtct.variable_name, dtct.available,
               ct.id, ct.created_at, ct.updated_at, ct.name, ct.category, ct.enable_subject_alt_name
        FROM device_type_certificate_types dtct
        JOIN certificate_types ct ON ct.id = dtct.certificate_type_id
        WHERE dtct.device_type_id = $1
        ORDER BY ct.name`

	rows, err := s.getDB().QueryContext(ctx, query, deviceTypeID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var assignments []*models.DeviceTypeCertificateType
	for rows.Next() {
		dtct := &models.DeviceTypeCertificateType{CertificateType: &models.CertificateType{}}
		ct := dtct.CertificateType

		err := rows.Scan(
			&dtct.ID, &dtct.CreatedAt, &dtct.UpdatedAt, &dtct.DeviceTypeID,
			&dtct.CertificateTypeID, &dtct.AutoRenew, &dtct.AutoRenewDaysBefore,
			&dtct.VariableName, &dtct.Available,
			&ct.ID, &ct.CreatedAt, &ct.UpdatedAt, &ct.Name, &ct.Category, &ct.EnableSubjectAltName,
		)
		if err != nil {
			return nil, mapError(err)
		}
		assignments = append(assignments, dtct)
	}

	return assignments, rows.Err()
}

// ========== Certificate Methods ==========

const certificateColumns = `
    id, created_at, updated_at, device_id, certificate_type_id, serial_number,
    encrypted_certificate, encrypted_private_key, generated_at, valid_from,
    valid_to, revoke_on_next_communication`

func scanCertificate(row rowScanner) (*models.Certificate, error) {
	cert := &models.Certificate{}
	err := row.Scan(
		&cert.ID, &cert.CreatedAt, &cert.UpdatedAt, &cert.DeviceID,
		&cert.CertificateTypeID, &cert.SerialNumber,
		&cert.EncryptedCertificate, &cert.EncryptedPrivateKey,
		&cert.GeneratedAt, &cert.ValidFrom, &cert.ValidTo,
		&cert.RevokeOnNextCommunication,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return cert, nil
}

// CreateCertificate creates a new certificate
func (s *PostgresStore) CreateCertificate(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == uuid.Nil {
		cert.ID = uuid.New()
	}

	now := time.Now()
	cert.CreatedAt = now
	cert.UpdatedAt = now

	query := `
        INSERT INTO certificates (` + certificateColumns + `
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.getDB().ExecContext(ctx, query,
		cert.ID, cert.CreatedAt, cert.UpdatedAt, cert.DeviceID,
		cert.CertificateTypeID, cert.SerialNumber,
		cert.EncryptedCertificate, cert.EncryptedPrivateKey,
		cert.GeneratedAt, cert.ValidFrom, cert.ValidTo,
		cert.RevokeOnNextCommunication,
	)

	return mapError(err)
}

// GetCertificate gets a certificate by id
func (s *PostgresStore) GetCertificate(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE id = $1`
	return scanCertificate(s.getDB().QueryRowContext(ctx, query, id))
}

// GetDeviceCertificateByType gets a device's certificate of a given type
func (s *PostgresStore) GetDeviceCertificateByType(ctx context.Context, deviceID, certificateTypeID uuid.UUID) (*models.Certificate, error) {
	query := `
        SELECT ` + certificateColumns + `
        FROM certificates
        WHERE device_id = $1 AND certificate_type_id = $2`
	return scanCertificate(s.getDB().QueryRowContext(ctx, query, deviceID, certificateTypeID))
}

// ListDeviceCertificates lists a device's certificates
func (s *PostgresStore) ListDeviceCertificates(ctx context.Context, deviceID uuid.UUID) ([]*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE device_id = $1`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}

	return certs, rows.Err()
}

// ListCertificatesExpiringBefore lists generated certificates whose validity
// ends before the cutoff and which are not yet marked for revocation.
func (s *PostgresStore) ListCertificatesExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.Certificate, error) {
	query := `
        SELECT ` + certificateColumns + `
        FROM certificates
        WHERE generated_at IS NOT NULL
          AND valid_to IS NOT NULL AND valid_to < $1
          AND NOT revoke_on_next_communication`

	rows, err := s.getDB().QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}

	return certs, rows.Err()
}

// UpdateCertificate updates a certificate
func (s *PostgresStore) UpdateCertificate(ctx context.Context, cert *models.Certificate) error {
	cert.UpdatedAt = time.Now()

	query := `
        UPDATE certificates SET
            updated_at = $2, serial_number = $3,
            encrypted_certificate = $4, encrypted_private_key = $5,
            generated_at = $6, valid_from = $7, valid_to = $8,
            revoke_on_next_communication = $9
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		cert.ID, cert.UpdatedAt, cert.SerialNumber,
		cert.EncryptedCertificate, cert.EncryptedPrivateKey,
		cert.GeneratedAt, cert.ValidFrom, cert.ValidTo,
		cert.RevokeOnNextCommunication,
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
