package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetd/fleet-server/internal/models"
	"github.com/fleetd/fleet-server/internal/pki"
	"github.com/fleetd/fleet-server/internal/storage"
	"github.com/fleetd/fleet-server/pkg/crypto"
)

// CertificateRenewalEngine walks the certificate types enabled on a device's
// type and renews the ones whose identity content changed or whose auto-renew
// window opened. Authority failures are logged and skipped, never fatal to
// the request.
type CertificateRenewalEngine struct {
	store             Store
	authority         pki.Authority
	crypto            *crypto.Service
	defaultDaysBefore int
}

// NewCertificateRenewalEngine creates a certificate renewal engine
func NewCertificateRenewalEngine(store Store, authority pki.Authority, cryptoSvc *crypto.Service, defaultDaysBefore int) *CertificateRenewalEngine {
	return &CertificateRenewalEngine{
		store:             store,
		authority:         authority,
		crypto:            cryptoSvc,
		defaultDaysBefore: defaultDaysBefore,
	}
}

// needsRenewal applies the renewal policy to one certificate
func (e *CertificateRenewalEngine) needsRenewal(assignment *models.DeviceTypeCertificateType, cert *models.Certificate, now time.Time) bool {
	if assignment.CertificateType.EnableSubjectAltName && cert.RevokeOnNextCommunication {
		return true
	}
	if assignment.AutoRenew && cert.ValidTo != nil {
		daysBefore := assignment.AutoRenewDaysBefore
		if daysBefore <= 0 {
			daysBefore = e.defaultDaysBefore
		}
		if !cert.ValidTo.AddDate(0, 0, -daysBefore).After(now) {
			return true
		}
	}
	return false
}

// Run evaluates every available certificate type for the device. It returns
// whether any certificate was renewed.
func (e *CertificateRenewalEngine) Run(ctx context.Context, rctx *RequestContext) (bool, error) {
	if !rctx.DeviceType.HasCertificates {
		return false, nil
	}

	assignments, err := e.store.ListDeviceTypeCertificateTypes(ctx, rctx.DeviceType.ID)
	if err != nil {
		return false, fmt.Errorf("list certificate types: %w", err)
	}

	now := time.Now()
	renewed := false

	for _, assignment := range assignments {
		if !assignment.Available || assignment.CertificateType == nil {
			continue
		}

		cert, err := e.store.GetDeviceCertificateByType(ctx, rctx.Device.ID, assignment.CertificateTypeID)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			rctx.Log.Warning("certificate.lookup_failed",
				fmt.Sprintf("could not load %s certificate: %v", assignment.CertificateType.Name, err))
			continue
		}
		if !cert.Generated() {
			continue
		}

		if !e.needsRenewal(assignment, cert, now) {
			continue
		}

		if err := e.renew(ctx, rctx, assignment.CertificateType, cert); err != nil {
			rctx.Log.Warning("certificate.renewal_failed",
				fmt.Sprintf("renewing %s certificate failed: %v", assignment.CertificateType.Name, err))
			continue
		}
		renewed = true
	}

	return renewed, nil
}

// renew delegates revoke-and-reissue to the authority and persists the new
// material immediately.
func (e *CertificateRenewalEngine) renew(ctx context.Context, rctx *RequestContext, certType *models.CertificateType, cert *models.Certificate) error {
	issued, err := e.authority.RevokeAndGenerate(ctx, rctx.Device, certType)
	if err != nil {
		return fmt.Errorf("authority: %w", err)
	}

	encCert, err := e.crypto.EncryptBytes(issued.CertificatePEM)
	if err != nil {
		return fmt.Errorf("encrypt certificate: %w", err)
	}
	encKey, err := e.crypto.EncryptBytes(issued.PrivateKeyPEM)
	if err != nil {
		return fmt.Errorf("encrypt private key: %w", err)
	}

	now := time.Now()
	cert.SerialNumber = issued.SerialNumber
	cert.EncryptedCertificate = encCert
	cert.EncryptedPrivateKey = encKey
	cert.GeneratedAt = &now
	validFrom := issued.ValidFrom
	validTo := issued.ValidTo
	cert.ValidFrom = &validFrom
	cert.ValidTo = &validTo
	cert.RevokeOnNextCommunication = false

	if err := e.store.UpdateCertificate(ctx, cert); err != nil {
		return fmt.Errorf("persist certificate: %w", err)
	}

	rctx.Log.Info("certificate.renewed",
		fmt.Sprintf("renewed %s certificate, serial %s, valid to %s",
			certType.Name, issued.SerialNumber, issued.ValidTo.Format(time.RFC3339)))
	return nil
}
