package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/fleetd/fleet-server/internal/models"
)

// ProtocolRouterDsa is the router variant running a device supervisor
// agent: an extra endpoint serves the agent's own configuration, and the
// check-in can carry a raw diagnostics payload.
const ProtocolRouterDsa = "router-dsa"

// maxDiagnosticBytes caps accepted diagnostic payloads
const maxDiagnosticBytes = 1 << 20

// RouterDsaProcedure extends the generic router protocol for units running
// the supervisor agent.
type RouterDsaProcedure struct {
	RouterProcedure
}

// NewRouterDsaProcedure creates the supervisor-agent router procedure
func NewRouterDsaProcedure(base Base) *RouterDsaProcedure {
	p := &RouterDsaProcedure{RouterProcedure: RouterProcedure{Base: base}}
	p.Bind(p)
	return p
}

// Protocol returns the protocol name
func (p *RouterDsaProcedure) Protocol() string { return ProtocolRouterDsa }

// Routes contributes the check-in route and the supervisor config route
func (p *RouterDsaProcedure) Routes(dt *models.DeviceType) []Route {
	return []Route{
		{
			Method:  http.MethodPost,
			Pattern: "/config",
			Name:    "router-dsa-config-" + dt.ID.String(),
		},
		{
			Method:  http.MethodPost,
			Pattern: "/device-supervisor-config",
			Name:    "router-dsa-supervisor-" + dt.ID.String(),
		},
	}
}

// ConfigSlotOrder evaluates both slots; the supervisor agent config lives in
// the secondary slot.
func (p *RouterDsaProcedure) ConfigSlotOrder() []models.Slot {
	return []models.Slot{models.SlotPrimary, models.SlotSecondary}
}

// DecodeRequest parses the form payload and, on the check-in route, an
// attached diagnostics file.
func (p *RouterDsaProcedure) DecodeRequest(r *http.Request, rctx *RequestContext) error {
	if err := r.ParseMultipartForm(maxDiagnosticBytes); err != nil && err != http.ErrNotMultipart {
		rctx.ValidationErrors = append(rctx.ValidationErrors, "malformed form payload")
		return nil
	}
	decodeRouterForm(r, rctx)

	if r.MultipartForm != nil {
		if file, _, err := r.FormFile("diagnose"); err == nil {
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, maxDiagnosticBytes))
			if err == nil {
				rctx.Payload.DiagnosticData = data
			}
		}
	}
	return nil
}

// HandleDiagnostics records a received diagnostics payload
func (p *RouterDsaProcedure) HandleDiagnostics(ctx context.Context, rctx *RequestContext) error {
	if len(rctx.Payload.DiagnosticData) == 0 {
		return nil
	}
	rctx.Log.Record(models.CommLevelInfo, "diagnostics.received",
		fmt.Sprintf("received %d bytes of diagnostics", len(rctx.Payload.DiagnosticData)),
		models.Variables{"size": len(rctx.Payload.DiagnosticData)})
	return nil
}
