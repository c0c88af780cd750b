package pki

import (
	"context"
	"time"

	"github.com/fleetd/fleet-server/internal/models"
)

// IssuedCertificate is the material returned by the authority for one
// generated certificate.
type IssuedCertificate struct {
	SerialNumber   string
	CertificatePEM []byte
	PrivateKeyPEM  []byte
	ValidFrom      time.Time
	ValidTo        time.Time
}

// Authority is the certificate authority boundary. The engine only decides
// when to revoke and regenerate; issuance itself is delegated here.
type Authority interface {
	// RevokeAndGenerate atomically revokes the device's current certificate
	// of the given type (when one exists) and issues a replacement.
	RevokeAndGenerate(ctx context.Context, device *models.Device, certType *models.CertificateType) (*IssuedCertificate, error)
}
