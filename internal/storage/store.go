package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, int64, error)

	// Device type methods
	CreateDeviceType(ctx context.Context, dt *models.DeviceType) error
	GetDeviceType(ctx context.Context, id uuid.UUID) (*models.DeviceType, error)
	GetDeviceTypeBySlug(ctx context.Context, slug string) (*models.DeviceType, error)
	UpdateDeviceType(ctx context.Context, dt *models.DeviceType) error
	DeleteDeviceType(ctx context.Context, id uuid.UUID) error
	ListDeviceTypes(ctx context.Context, enabledOnly bool, limit, offset int) ([]*models.DeviceType, int64, error)

	// Device methods
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error)
	GetDeviceByUUID(ctx context.Context, deviceUUID string) (*models.Device, error)
	GetDeviceByHashIdentifier(ctx context.Context, hash string) (*models.Device, error)
	GetDeviceBySerialNumber(ctx context.Context, serial string) (*models.Device, error)
	GetDeviceByIMSI(ctx context.Context, imsi string) (*models.Device, error)
	UpdateDevice(ctx context.Context, device *models.Device) error
	DeleteDevice(ctx context.Context, id uuid.UUID) error
	ListDevices(ctx context.Context, deviceTypeID *uuid.UUID, limit, offset int) ([]*models.Device, int64, error)

	// Certificate type methods
	CreateCertificateType(ctx context.Context, ct *models.CertificateType) error
	GetCertificateType(ctx context.Context, id uuid.UUID) (*models.CertificateType, error)
	ListCertificateTypes(ctx context.Context) ([]*models.CertificateType, error)
	ListDeviceTypeCertificateTypes(ctx context.Context, deviceTypeID uuid.UUID) ([]*models.DeviceTypeCertificateType, error)
	CreateDeviceTypeCertificateType(ctx context.Context, dtct *models.DeviceTypeCertificateType) error

	// Certificate methods
	CreateCertificate(ctx context.Context, cert *models.Certificate) error
	GetCertificate(ctx context.Context, id uuid.UUID) (*models.Certificate, error)
	GetDeviceCertificateByType(ctx context.Context, deviceID, certificateTypeID uuid.UUID) (*models.Certificate, error)
	ListDeviceCertificates(ctx context.Context, deviceID uuid.UUID) ([]*models.Certificate, error)
	ListCertificatesExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.Certificate, error)
	UpdateCertificate(ctx context.Context, cert *models.Certificate) error

	// Secret methods
	CreateDeviceTypeSecret(ctx context.Context, dts *models.DeviceTypeSecret) error
	ListDeviceTypeSecrets(ctx context.Context, deviceTypeID uuid.UUID) ([]*models.DeviceTypeSecret, error)
	CreateDeviceSecret(ctx context.Context, secret *models.DeviceSecret) error
	GetDeviceSecret(ctx context.Context, deviceID, deviceTypeSecretID uuid.UUID) (*models.DeviceSecret, error)
	ListDeviceSecrets(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceSecret, error)
	UpdateDeviceSecret(ctx context.Context, secret *models.DeviceSecret) error

	// Template version methods
	CreateTemplateVersion(ctx context.Context, tv *models.TemplateVersion) error
	GetTemplateVersion(ctx context.Context, deviceTypeID uuid.UUID, staging bool) (*models.TemplateVersion, error)

	// Communication log methods
	CreateCommunicationLog(ctx context.Context, entry *models.CommunicationLog) error
	ListCommunicationLogs(ctx context.Context, filters CommunicationLogFilters, limit, offset int) ([]*models.CommunicationLog, int64, error)

	// Device command methods
	CreateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error
	GetDeviceCommandByTransactionID(ctx context.Context, transactionID string) (*models.DeviceCommand, error)
	ListPendingDeviceCommands(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceCommand, error)
	UpdateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error

	// Firmware file methods
	CreateFirmwareFile(ctx context.Context, file *models.FirmwareFile) error
	GetFirmwareFile(ctx context.Context, id uuid.UUID) (*models.FirmwareFile, error)
	IncrementFirmwareDownloadCount(ctx context.Context, id uuid.UUID) error

	// Close the store
	Close() error
}

// CommunicationLogFilters represents filters for communication logs
type CommunicationLogFilters struct {
	DeviceID     *uuid.UUID
	DeviceTypeID *uuid.UUID
	RequestID    *string
	Level        *models.CommLevel
	StartTime    *time.Time
	EndTime      *time.Time
}
