package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetd/fleet-server/internal/models"
)

func renewalFixture(authority *stubAuthority) (*memStore, *CertificateRenewalEngine, *RequestContext) {
	store := newMemStore()
	dt := store.addDeviceType(&models.DeviceType{
		Name:            "gateway",
		Protocol:        ProtocolEdgeGateway,
		HasCertificates: true,
	})

	rctx := testRequestContext(dt)
	rctx.Device = &models.Device{DeviceTypeID: dt.ID, Name: "unit-1"}
	rctx.Device.ID = newTestID()

	return store, NewCertificateRenewalEngine(store, authority, testCryptoService(), 30), rctx
}

func addCertAssignment(store *memStore, rctx *RequestContext, certType *models.CertificateType, assignment *models.DeviceTypeCertificateType, cert *models.Certificate) {
	certType.ID = newTestID()
	assignment.ID = newTestID()
	assignment.DeviceTypeID = rctx.DeviceType.ID
	assignment.CertificateTypeID = certType.ID
	assignment.CertificateType = certType
	store.certTypes[rctx.DeviceType.ID] = append(store.certTypes[rctx.DeviceType.ID], assignment)

	if cert != nil {
		cert.ID = newTestID()
		cert.DeviceID = rctx.Device.ID
		cert.CertificateTypeID = certType.ID
		store.certificates[rctx.Device.ID] = append(store.certificates[rctx.Device.ID], cert)
	}
}

func generatedCert(validTo time.Time) *models.Certificate {
	now := time.Now()
	vt := validTo
	return &models.Certificate{
		SerialNumber:         "old-serial",
		EncryptedCertificate: []byte("enc-cert"),
		EncryptedPrivateKey:  []byte("enc-key"),
		GeneratedAt:          &now,
		ValidTo:              &vt,
	}
}

func TestRenewalOnRevocationFlag(t *testing.T) {
	authority := &stubAuthority{}
	store, engine, rctx := renewalFixture(authority)

	cert := generatedCert(time.Now().AddDate(1, 0, 0))
	cert.RevokeOnNextCommunication = true
	addCertAssignment(store, rctx,
		&models.CertificateType{Name: "vpn", Category: models.CertificateCategoryVPN, EnableSubjectAltName: true},
		&models.DeviceTypeCertificateType{Available: true},
		cert)

	renewed, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.True(t, renewed)
	assert.Equal(t, 1, authority.issued)
	assert.Equal(t, "stub-serial", cert.SerialNumber)
	assert.False(t, cert.RevokeOnNextCommunication)
	assert.NotEqual(t, []byte("enc-cert"), cert.EncryptedCertificate)
}

func TestRenewalWithinAutoRenewWindow(t *testing.T) {
	authority := &stubAuthority{}
	store, engine, rctx := renewalFixture(authority)

	expiring := generatedCert(time.Now().AddDate(0, 0, 10))
	addCertAssignment(store, rctx,
		&models.CertificateType{Name: "device", Category: models.CertificateCategoryDevice},
		&models.DeviceTypeCertificateType{Available: true, AutoRenew: true, AutoRenewDaysBefore: 30},
		expiring)

	renewed, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.True(t, renewed)
	assert.Equal(t, 1, authority.issued)
}

func TestRenewalOutsideWindowDoesNothing(t *testing.T) {
	authority := &stubAuthority{}
	store, engine, rctx := renewalFixture(authority)

	healthy := generatedCert(time.Now().AddDate(0, 0, 60))
	addCertAssignment(store, rctx,
		&models.CertificateType{Name: "device", Category: models.CertificateCategoryDevice},
		&models.DeviceTypeCertificateType{Available: true, AutoRenew: true, AutoRenewDaysBefore: 30},
		healthy)

	renewed, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.False(t, renewed)
	assert.Equal(t, 0, authority.issued)
}

func TestRenewalUsesDefaultWindowWhenUnset(t *testing.T) {
	authority := &stubAuthority{}
	store, engine, rctx := renewalFixture(authority)

	// 20 days out, assignment has no own window: default of 30 applies
	expiring := generatedCert(time.Now().AddDate(0, 0, 20))
	addCertAssignment(store, rctx,
		&models.CertificateType{Name: "device", Category: models.CertificateCategoryDevice},
		&models.DeviceTypeCertificateType{Available: true, AutoRenew: true},
		expiring)

	renewed, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.True(t, renewed)
}

func TestRenewalSkipsUngeneratedAndUnavailable(t *testing.T) {
	authority := &stubAuthority{}
	store, engine, rctx := renewalFixture(authority)

	pending := &models.Certificate{RevokeOnNextCommunication: true}
	addCertAssignment(store, rctx,
		&models.CertificateType{Name: "vpn", Category: models.CertificateCategoryVPN, EnableSubjectAltName: true},
		&models.DeviceTypeCertificateType{Available: true},
		pending)

	unavailableCert := generatedCert(time.Now())
	unavailableCert.RevokeOnNextCommunication = true
	addCertAssignment(store, rctx,
		&models.CertificateType{Name: "server", Category: models.CertificateCategoryServer, EnableSubjectAltName: true},
		&models.DeviceTypeCertificateType{Available: false},
		unavailableCert)

	renewed, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.False(t, renewed)
	assert.Equal(t, 0, authority.issued)
}

func TestRenewalAuthorityFailureIsNotFatal(t *testing.T) {
	authority := &stubAuthority{fail: true}
	store, engine, rctx := renewalFixture(authority)

	cert := generatedCert(time.Now().AddDate(1, 0, 0))
	cert.RevokeOnNextCommunication = true
	addCertAssignment(store, rctx,
		&models.CertificateType{Name: "vpn", Category: models.CertificateCategoryVPN, EnableSubjectAltName: true},
		&models.DeviceTypeCertificateType{Available: true},
		cert)

	renewed, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.False(t, renewed)
	assert.Equal(t, "old-serial", cert.SerialNumber)
}

func TestRenewalSkippedWithoutCertificateCapability(t *testing.T) {
	authority := &stubAuthority{}
	_, engine, rctx := renewalFixture(authority)
	rctx.DeviceType.HasCertificates = false

	renewed, err := engine.Run(context.Background(), rctx)
	require.NoError(t, err)
	assert.False(t, renewed)
}
