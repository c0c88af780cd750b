package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// Store is the persistence surface the communication engine needs. It is a
// subset of storage.Store so tests can supply a small in-memory fake.
type Store interface {
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error)
	GetDeviceByUUID(ctx context.Context, deviceUUID string) (*models.Device, error)
	GetDeviceByHashIdentifier(ctx context.Context, hash string) (*models.Device, error)
	GetDeviceBySerialNumber(ctx context.Context, serial string) (*models.Device, error)
	GetDeviceByIMSI(ctx context.Context, imsi string) (*models.Device, error)
	UpdateDevice(ctx context.Context, device *models.Device) error

	ListDeviceTypes(ctx context.Context, enabledOnly bool, limit, offset int) ([]*models.DeviceType, int64, error)
	GetDeviceTypeBySlug(ctx context.Context, slug string) (*models.DeviceType, error)

	GetTemplateVersion(ctx context.Context, deviceTypeID uuid.UUID, staging bool) (*models.TemplateVersion, error)

	ListDeviceTypeCertificateTypes(ctx context.Context, deviceTypeID uuid.UUID) ([]*models.DeviceTypeCertificateType, error)
	GetDeviceCertificateByType(ctx context.Context, deviceID, certificateTypeID uuid.UUID) (*models.Certificate, error)
	ListDeviceCertificates(ctx context.Context, deviceID uuid.UUID) ([]*models.Certificate, error)
	UpdateCertificate(ctx context.Context, cert *models.Certificate) error

	ListDeviceTypeSecrets(ctx context.Context, deviceTypeID uuid.UUID) ([]*models.DeviceTypeSecret, error)
	ListDeviceSecrets(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceSecret, error)
	GetDeviceSecret(ctx context.Context, deviceID, deviceTypeSecretID uuid.UUID) (*models.DeviceSecret, error)
	CreateDeviceSecret(ctx context.Context, secret *models.DeviceSecret) error
	UpdateDeviceSecret(ctx context.Context, secret *models.DeviceSecret) error

	CreateCommunicationLog(ctx context.Context, entry *models.CommunicationLog) error

	ListPendingDeviceCommands(ctx context.Context, deviceID uuid.UUID) ([]*models.DeviceCommand, error)
	GetDeviceCommandByTransactionID(ctx context.Context, transactionID string) (*models.DeviceCommand, error)
	UpdateDeviceCommand(ctx context.Context, cmd *models.DeviceCommand) error

	GetFirmwareFile(ctx context.Context, id uuid.UUID) (*models.FirmwareFile, error)
	IncrementFirmwareDownloadCount(ctx context.Context, id uuid.UUID) error
}
