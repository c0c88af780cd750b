package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/fleetd/fleet-server/internal/models"
)

// Store is the persistence surface the sweep needs, a subset of
// storage.Store.
type Store interface {
	ListCertificatesExpiringBefore(ctx context.Context, cutoff time.Time) ([]*models.Certificate, error)
	UpdateCertificate(ctx context.Context, cert *models.Certificate) error
}

// CertificateSweep periodically marks certificates entering their renewal
// window for revoke-on-next-communication, so the renewal itself happens on
// the device's own check-in.
type CertificateSweep struct {
	store      Store
	daysBefore int
	schedule   string
	cron       *cron.Cron
}

// NewCertificateSweep creates the sweep job
func NewCertificateSweep(store Store, schedule string, daysBefore int) *CertificateSweep {
	return &CertificateSweep{
		store:      store,
		daysBefore: daysBefore,
		schedule:   schedule,
	}
}

// Start schedules the sweep
func (j *CertificateSweep) Start() error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.schedule, func() {
		if err := j.Run(context.Background()); err != nil {
			log.Error().Err(err).Msg("certificate sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule certificate sweep: %w", err)
	}
	j.cron.Start()
	log.Info().Str("schedule", j.schedule).Msg("Certificate sweep scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running sweep
func (j *CertificateSweep) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Run executes one sweep pass
func (j *CertificateSweep) Run(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, j.daysBefore)

	certs, err := j.store.ListCertificatesExpiringBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list expiring certificates: %w", err)
	}

	marked := 0
	for _, cert := range certs {
		if cert.RevokeOnNextCommunication {
			continue
		}
		cert.RevokeOnNextCommunication = true
		if err := j.store.UpdateCertificate(ctx, cert); err != nil {
			log.Warn().Err(err).Str("certificate", cert.ID.String()).Msg("mark certificate for renewal")
			continue
		}
		marked++
	}

	log.Info().Int("expiring", len(certs)).Int("marked", marked).Msg("Certificate sweep completed")
	return nil
}
