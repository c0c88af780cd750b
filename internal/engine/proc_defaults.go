package engine

import (
	"context"

	"github.com/fleetd/fleet-server/internal/models"
)

// hookDefaults supplies the hook behavior most protocols share. Concrete
// procedures embed it and override what differs.
type hookDefaults struct{}

// GenerateIdentifier derives the display identifier for a new device with
// the common precedence serial, then IMSI, then a generated fallback.
func (hookDefaults) GenerateIdentifier(rctx *RequestContext) string {
	p := rctx.Payload
	if p.SerialNumber != "" {
		return p.SerialNumber
	}
	if p.IMSI != "" {
		return p.IMSI
	}
	return FallbackIdentifier()
}

// HandleDiagnostics is a no-op for protocols without a diagnostics step
func (hookDefaults) HandleDiagnostics(ctx context.Context, rctx *RequestContext) error {
	return nil
}

// ConfigSlotOrder evaluates the primary slot only
func (hookDefaults) ConfigSlotOrder() []models.Slot {
	return []models.Slot{models.SlotPrimary}
}

// SendTheSameConfig keeps identical-content deduplication on
func (hookDefaults) SendTheSameConfig() bool { return false }

// FirmwareSecured requires the download secret on firmware URLs
func (hookDefaults) FirmwareSecured() bool { return true }

// CustomVariables contributes nothing by default
func (hookDefaults) CustomVariables(rctx *RequestContext) []Variable { return nil }
