package models

import (
	"github.com/google/uuid"
)

// FirmwareFile is the stored metadata for one firmware artifact served by
// the download endpoint.
type FirmwareFile struct {
	BaseModel

	DeviceTypeID uuid.UUID `json:"deviceTypeId" db:"device_type_id"`

	FileName string `json:"fileName" db:"file_name"`
	Version  string `json:"version" db:"version"`
	Size     int64  `json:"size" db:"size"`
	Checksum string `json:"checksum" db:"checksum"`

	// StoragePath locates the artifact under the firmware storage dir
	StoragePath string `json:"-" db:"storage_path"`

	DownloadCount int64 `json:"downloadCount" db:"download_count"`
}
