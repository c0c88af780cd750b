package engine

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fleetd/fleet-server/internal/generator"
	"github.com/fleetd/fleet-server/internal/models"
)

// ProtocolSgGateway is the protocol of the proprietary SG gateway
// appliance: the unit posts its running configuration as the raw body and
// expects the replacement back under a vendor content type.
const ProtocolSgGateway = "sg-gateway"

// maxStartupConfigBytes caps accepted running-config bodies
const maxStartupConfigBytes = 4 << 20

// SgGatewayProcedure handles the SG gateway appliance protocol
type SgGatewayProcedure struct {
	Base
	hookDefaults
}

// NewSgGatewayProcedure creates the SG gateway procedure
func NewSgGatewayProcedure(base Base) *SgGatewayProcedure {
	p := &SgGatewayProcedure{Base: base}
	p.Bind(p)
	return p
}

// Protocol returns the protocol name
func (p *SgGatewayProcedure) Protocol() string { return ProtocolSgGateway }

// Routes contributes the configuration exchange route
func (p *SgGatewayProcedure) Routes(dt *models.DeviceType) []Route {
	return []Route{{
		Method:  http.MethodPost,
		Pattern: "/configuration",
		Name:    "sg-gateway-configuration-" + dt.ID.String(),
	}}
}

// Requirements declares what the device type must provide
func (p *SgGatewayProcedure) Requirements() Requirements {
	return Requirements{
		RequiredFeatures: []Feature{FeatureConfig},
		OptionalFeatures: []Feature{FeatureFirmware},
		Fields:           models.FieldRequirements{models.DeviceFieldSerialNumber: models.FieldRequired},
	}
}

// DecodeRequest reads identity from headers and the running config from the
// raw body.
func (p *SgGatewayProcedure) DecodeRequest(r *http.Request, rctx *RequestContext) error {
	pl := rctx.Payload
	pl.SerialNumber = strings.TrimSpace(r.Header.Get("X-Serial-Number"))
	pl.Model = r.Header.Get("X-Model")
	pl.PublicIP = remoteIP(r)
	pl.FirmwareVersions.Set(models.SlotPrimary, r.Header.Get("X-Firmware-Version"))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxStartupConfigBytes))
	if err == nil && len(body) > 0 {
		pl.CurrentConfigs[models.SlotPrimary] = body
	}
	return nil
}

// ResolveDevice locates the appliance by serial number, creating on first
// contact.
func (p *SgGatewayProcedure) ResolveDevice(ctx context.Context, rctx *RequestContext) error {
	device, err := p.Identity.ResolveRouter(ctx, rctx)
	if err != nil {
		return err
	}
	if device != nil {
		rctx.Device = device
		return nil
	}

	created, err := p.Identity.CreateDevice(ctx, rctx, p.GenerateIdentifier(rctx))
	if err != nil {
		return err
	}
	rctx.Device = created
	rctx.Created = true
	return nil
}

// startupConfigContentType returns the vendor content type. Firmware lines
// before 2.x only accept the all-lowercase spelling.
func startupConfigContentType(firmwareVersion string) string {
	version := NormalizeVersion(firmwareVersion)
	major := 0
	if i := strings.IndexByte(version, '.'); i > 0 {
		major, _ = strconv.Atoi(version[:i])
	} else if version != "" {
		major, _ = strconv.Atoi(version)
	}
	if major >= 2 {
		return "configuration/Startup-config"
	}
	return "configuration/startup-config"
}

// PushFirmware answers with the download URL as the whole body
func (p *SgGatewayProcedure) PushFirmware(rctx *RequestContext, slot models.Slot, assignment *models.FirmwareAssignment, url string) error {
	rctx.Response = &Response{
		StatusCode:  http.StatusOK,
		ContentType: "text/plain",
		Body:        []byte(url),
	}
	return nil
}

// PushConfig answers with the raw config under the vendor content type
func (p *SgGatewayProcedure) PushConfig(rctx *RequestContext, slot models.Slot, artifact *generator.Artifact) error {
	rctx.Response = &Response{
		StatusCode:  http.StatusOK,
		ContentType: startupConfigContentType(rctx.Payload.FirmwareVersions.Get(models.SlotPrimary)),
		Body:        artifact.Content,
	}
	return nil
}

// ErrorResponse answers with a bare status code; the appliance ignores error
// bodies.
func (p *SgGatewayProcedure) ErrorResponse(rctx *RequestContext, kind ErrorKind, messages []string) {
	status := http.StatusInternalServerError
	switch kind {
	case ErrorKindValidation:
		status = http.StatusBadRequest
	case ErrorKindTypeMismatch, ErrorKindUnknownDevice:
		status = http.StatusForbidden
	}
	rctx.Response = &Response{StatusCode: status}
}

// FinishResponse answers no content when the running config stands
func (p *SgGatewayProcedure) FinishResponse(ctx context.Context, rctx *RequestContext) error {
	rctx.Response = &Response{StatusCode: http.StatusNoContent}
	return nil
}

// SendTheSameConfig is on for this appliance: it treats every exchange as
// authoritative and expects its config echoed back even when unchanged.
func (p *SgGatewayProcedure) SendTheSameConfig() bool { return true }
