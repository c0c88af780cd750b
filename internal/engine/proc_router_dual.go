package engine

import (
	"net/http"

	"github.com/fleetd/fleet-server/internal/models"
)

// ProtocolRouterDual is the router variant with two independent config
// slots, used by units running a split system/application configuration.
const ProtocolRouterDual = "router-dual"

// RouterDualProcedure extends the generic router protocol with a secondary
// config slot evaluated after the primary one.
type RouterDualProcedure struct {
	RouterProcedure
}

// NewRouterDualProcedure creates the dual-config router procedure
func NewRouterDualProcedure(base Base) *RouterDualProcedure {
	p := &RouterDualProcedure{RouterProcedure: RouterProcedure{Base: base}}
	p.Bind(p)
	return p
}

// Protocol returns the protocol name
func (p *RouterDualProcedure) Protocol() string { return ProtocolRouterDual }

// Routes contributes the check-in route
func (p *RouterDualProcedure) Routes(dt *models.DeviceType) []Route {
	return []Route{{
		Method:  http.MethodPost,
		Pattern: "/config",
		Name:    "router-dual-config-" + dt.ID.String(),
	}}
}

// ConfigSlotOrder evaluates the primary slot, then the secondary
func (p *RouterDualProcedure) ConfigSlotOrder() []models.Slot {
	return []models.Slot{models.SlotPrimary, models.SlotSecondary}
}
