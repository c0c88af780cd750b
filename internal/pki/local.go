package pki

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/fleetd/fleet-server/internal/models"
)

// LocalAuthority is a self-contained issuing authority backed by an in-memory
// CA key pair. Installations with a SCEP backend replace it behind the
// Authority interface.
type LocalAuthority struct {
	caCert *x509.Certificate
	caKey  *ecdsa.PrivateKey

	validity time.Duration
}

// NewLocalAuthority creates a local authority with a fresh self-signed CA
func NewLocalAuthority(commonName string, validity time.Duration) (*LocalAuthority, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &LocalAuthority{caCert: cert, caKey: key, validity: validity}, nil
}

// RevokeAndGenerate issues a fresh certificate for the device. Revocation is
// implicit for a local authority: the superseded certificate simply stops
// being served.
func (a *LocalAuthority) RevokeAndGenerate(ctx context.Context, device *models.Device, certType *models.CertificateType) (*IssuedCertificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(a.validity)

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:         device.UUID,
			OrganizationalUnit: []string{string(certType.Category)},
		},
		NotBefore:   notBefore,
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	if certType.EnableSubjectAltName {
		tmpl.DNSNames = []string{device.UUID}
		if device.HasSerial() {
			tmpl.DNSNames = append(tmpl.DNSNames, *device.SerialNumber)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.caCert, &key.PublicKey, a.caKey)
	if err != nil {
		return nil, fmt.Errorf("create device certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}

	return &IssuedCertificate{
		SerialNumber:   serial.Text(16),
		CertificatePEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		PrivateKeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
		ValidFrom:      notBefore,
		ValidTo:        notAfter,
	}, nil
}

// CACertificatePEM returns the authority's own certificate
func (a *LocalAuthority) CACertificatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: a.caCert.Raw})
}
