package engine

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fleetd/fleet-server/internal/generator"
	"github.com/fleetd/fleet-server/internal/models"
)

// ProtocolRouter is the generic cellular router check-in protocol: a form
// POST carrying identity and telemetry, answered with plain text.
const ProtocolRouter = "router"

// RouterProcedure handles the generic router protocol
type RouterProcedure struct {
	Base
	hookDefaults
}

// NewRouterProcedure creates the generic router procedure
func NewRouterProcedure(base Base) *RouterProcedure {
	p := &RouterProcedure{Base: base}
	p.Bind(p)
	return p
}

// Protocol returns the protocol name
func (p *RouterProcedure) Protocol() string { return ProtocolRouter }

// Routes contributes the single check-in route
func (p *RouterProcedure) Routes(dt *models.DeviceType) []Route {
	return []Route{{
		Method:  http.MethodPost,
		Pattern: "/config",
		Name:    "router-config-" + dt.ID.String(),
	}}
}

// Requirements declares what the device type must provide
func (p *RouterProcedure) Requirements() Requirements {
	return Requirements{
		RequiredFeatures: []Feature{FeatureConfig},
		OptionalFeatures: []Feature{FeatureFirmware, FeatureGSM, FeatureVPN},
		Fields:           models.FieldRequirements{models.DeviceFieldSerialNumber: models.FieldRequiredInCommunication},
	}
}

// DecodeRequest parses the router's form payload
func (p *RouterProcedure) DecodeRequest(r *http.Request, rctx *RequestContext) error {
	if err := r.ParseForm(); err != nil {
		rctx.ValidationErrors = append(rctx.ValidationErrors, "malformed form payload")
		return nil
	}
	decodeRouterForm(r, rctx)
	return nil
}

// decodeRouterForm fills the payload from the form fields the router family
// shares. Numeric telemetry that does not parse is dropped, not fatal.
func decodeRouterForm(r *http.Request, rctx *RequestContext) {
	form := r.PostForm
	pl := rctx.Payload

	pl.SerialNumber = strings.TrimSpace(form.Get("serial"))
	pl.IMSI = strings.TrimSpace(form.Get("imsi"))
	pl.IMEI = strings.TrimSpace(form.Get("imei"))
	pl.Model = strings.TrimSpace(form.Get("model"))
	pl.Name = strings.TrimSpace(form.Get("name"))
	pl.Operator = form.Get("operator")
	pl.CellID = form.Get("cell_id")
	pl.LocalIP = form.Get("local_ip")
	pl.PublicIP = remoteIP(r)

	pl.FirmwareVersions.Set(models.SlotPrimary, form.Get("firmware"))
	pl.FirmwareVersions.Set(models.SlotSecondary, form.Get("firmware2"))

	if v := form.Get("config"); v != "" {
		pl.CurrentConfigs[models.SlotPrimary] = []byte(v)
	}
	if v := form.Get("config2"); v != "" {
		pl.CurrentConfigs[models.SlotSecondary] = []byte(v)
	}

	if v, err := strconv.Atoi(form.Get("rsrp")); err == nil {
		pl.Rsrp = &v
	}
	if v, err := strconv.Atoi(form.Get("rsrq")); err == nil {
		pl.Rsrq = &v
	}

	raw := make(models.Variables, len(form))
	for k := range form {
		raw[k] = form.Get(k)
	}
	pl.Raw = raw
}

// remoteIP strips the port from the request's remote address
func remoteIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}

// ResolveDevice locates the router by the authoritative identifier and
// creates it on first contact.
func (p *RouterProcedure) ResolveDevice(ctx context.Context, rctx *RequestContext) error {
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

// PushFirmware answers with the download URL as the whole body
func (p *RouterProcedure) PushFirmware(rctx *RequestContext, slot models.Slot, assignment *models.FirmwareAssignment, url string) error {
	rctx.Response = &Response{
		StatusCode:  http.StatusOK,
		ContentType: "text/plain",
		Body:        []byte(url),
		Header:      map[string]string{"X-Fleet-Action": "firmware"},
	}
	return nil
}

// PushConfig answers with the rendered config as the whole body
func (p *RouterProcedure) PushConfig(rctx *RequestContext, slot models.Slot, artifact *generator.Artifact) error {
	rctx.Response = &Response{
		StatusCode:  http.StatusOK,
		ContentType: "text/plain",
		Body:        artifact.Content,
		Header:      map[string]string{"X-Fleet-Action": "config"},
	}
	return nil
}

// ErrorResponse answers routers with a terse plain-text error
func (p *RouterProcedure) ErrorResponse(rctx *RequestContext, kind ErrorKind, messages []string) {
	status := http.StatusInternalServerError
	switch kind {
	case ErrorKindValidation:
		status = http.StatusBadRequest
	case ErrorKindTypeMismatch, ErrorKindUnknownDevice:
		status = http.StatusForbidden
	}
	rctx.Response = &Response{
		StatusCode:  status,
		ContentType: "text/plain",
		Body:        []byte(fmt.Sprintf("ERROR %s: %s", kind, strings.Join(messages, "; "))),
	}
}

// FinishResponse answers an empty body when nothing is pushed
func (p *RouterProcedure) FinishResponse(ctx context.Context, rctx *RequestContext) error {
	rctx.Response = &Response{StatusCode: http.StatusOK, ContentType: "text/plain"}
	return nil
}
