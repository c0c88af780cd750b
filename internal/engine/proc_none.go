package engine

import (
	"context"
	"net/http"

	"github.com/fleetd/fleet-server/internal/generator"
	"github.com/fleetd/fleet-server/internal/models"
)

// ProtocolNone is the null protocol assigned when a device type names an
// unknown protocol or none at all. It contributes no routes and declines
// every request that somehow reaches it.
const ProtocolNone = "none"

// NoneProcedure is the null procedure
type NoneProcedure struct {
	Base
	hookDefaults
}

// NewNoneProcedure creates the null procedure
func NewNoneProcedure(base Base) *NoneProcedure {
	p := &NoneProcedure{Base: base}
	p.Bind(p)
	return p
}

// Protocol returns the protocol name
func (p *NoneProcedure) Protocol() string { return ProtocolNone }

// Routes contributes nothing, so the dispatcher never matches this type
func (p *NoneProcedure) Routes(dt *models.DeviceType) []Route { return nil }

// Requirements requires nothing
func (p *NoneProcedure) Requirements() Requirements { return Requirements{} }

// DecodeRequest accepts nothing
func (p *NoneProcedure) DecodeRequest(r *http.Request, rctx *RequestContext) error {
	return nil
}

// ResolveDevice declines every request
func (p *NoneProcedure) ResolveDevice(ctx context.Context, rctx *RequestContext) error {
	p.ErrorResponse(rctx, ErrorKindUnknownDevice, []string{"protocol not configured"})
	return nil
}

// PushFirmware is unreachable
func (p *NoneProcedure) PushFirmware(rctx *RequestContext, slot models.Slot, assignment *models.FirmwareAssignment, url string) error {
	return nil
}

// PushConfig is unreachable
func (p *NoneProcedure) PushConfig(rctx *RequestContext, slot models.Slot, artifact *generator.Artifact) error {
	return nil
}

// ErrorResponse answers not found; the null protocol has no reply format
func (p *NoneProcedure) ErrorResponse(rctx *RequestContext, kind ErrorKind, messages []string) {
	rctx.Response = &Response{StatusCode: http.StatusNotFound}
}

// FinishResponse is unreachable
func (p *NoneProcedure) FinishResponse(ctx context.Context, rctx *RequestContext) error {
	rctx.Response = &Response{StatusCode: http.StatusNotFound}
	return nil
}
