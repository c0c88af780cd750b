package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fleetd/fleet-server/internal/generator"
	"github.com/fleetd/fleet-server/internal/models"
	"github.com/fleetd/fleet-server/internal/storage"
)

// ProtocolEdgeGateway is the protocol of the VPN-client container: devices
// are provisioned ahead of time and identify by UUID, so unknown devices are
// rejected instead of created. Certificate material rides in the config.
const ProtocolEdgeGateway = "edge-gateway"

// edgeGatewayRequest is the JSON check-in body
type edgeGatewayRequest struct {
	UUID          string `json:"uuid"`
	Version       string `json:"version"`
	CurrentConfig string `json:"currentConfiguration"`
	LocalIP       string `json:"localIp"`
}

// edgeGatewayResponse is the JSON reply
type edgeGatewayResponse struct {
	Status        string   `json:"status"`
	Configuration string   `json:"configuration,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// EdgeGatewayProcedure handles the VPN-client container protocol
type EdgeGatewayProcedure struct {
	Base
	hookDefaults
}

// NewEdgeGatewayProcedure creates the edge gateway procedure
func NewEdgeGatewayProcedure(base Base) *EdgeGatewayProcedure {
	p := &EdgeGatewayProcedure{Base: base}
	p.Bind(p)
	return p
}

// Protocol returns the protocol name
func (p *EdgeGatewayProcedure) Protocol() string { return ProtocolEdgeGateway }

// Routes contributes the JSON check-in route
func (p *EdgeGatewayProcedure) Routes(dt *models.DeviceType) []Route {
	return []Route{{
		Method:  http.MethodPost,
		Pattern: "/config",
		Name:    "edge-gateway-config-" + dt.ID.String(),
	}}
}

// Requirements: the container exists to terminate a VPN tunnel, so VPN and
// certificate support are hard requirements.
func (p *EdgeGatewayProcedure) Requirements() Requirements {
	return Requirements{
		RequiredFeatures: []Feature{FeatureConfig, FeatureVPN, FeatureCertificates},
		RequiredCertificateCategories: []models.CertificateCategory{
			models.CertificateCategoryVPN,
			models.CertificateCategoryCA,
		},
		OptionalFeatures: []Feature{FeatureEndpointDevices},
	}
}

// DecodeRequest parses the JSON body
func (p *EdgeGatewayProcedure) DecodeRequest(r *http.Request, rctx *RequestContext) error {
	var req edgeGatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rctx.ValidationErrors = append(rctx.ValidationErrors, "malformed JSON payload")
		return nil
	}
	if strings.TrimSpace(req.UUID) == "" {
		rctx.ValidationErrors = append(rctx.ValidationErrors, "field uuid is required")
		return nil
	}

	pl := rctx.Payload
	pl.LocalIP = req.LocalIP
	pl.PublicIP = remoteIP(r)
	pl.FirmwareVersions.Set(models.SlotPrimary, req.Version)
	if req.CurrentConfig != "" {
		pl.CurrentConfigs[models.SlotPrimary] = []byte(req.CurrentConfig)
	}
	pl.Raw = models.Variables{"uuid": req.UUID, "version": req.Version}
	return nil
}

// ResolveDevice locates the container by UUID and never creates one
func (p *EdgeGatewayProcedure) ResolveDevice(ctx context.Context, rctx *RequestContext) error {
	raw, _ := rctx.Payload.Raw["uuid"].(string)

	device, err := p.Store.GetDeviceByUUID(ctx, raw)
	if errors.Is(err, storage.ErrNotFound) {
		rctx.Log.Warning("identity.rejected", "unknown device uuid, provisioning required")
		p.ErrorResponse(rctx, ErrorKindUnknownDevice, []string{"unknown device"})
		return nil
	}
	if err != nil {
		return err
	}
	rctx.Device = device
	return nil
}

// respondJSON shapes a JSON reply
func (p *EdgeGatewayProcedure) respondJSON(rctx *RequestContext, status int, body edgeGatewayResponse) {
	data, _ := json.Marshal(body)
	rctx.Response = &Response{
		StatusCode:  status,
		ContentType: "application/json",
		Body:        data,
	}
}

// PushFirmware is never reached: the container updates via its image, so no
// device type for this protocol enables firmware slots.
func (p *EdgeGatewayProcedure) PushFirmware(rctx *RequestContext, slot models.Slot, assignment *models.FirmwareAssignment, url string) error {
	p.respondJSON(rctx, http.StatusOK, edgeGatewayResponse{Status: "OK"})
	return nil
}

// PushConfig answers with the config payload carrying tunnel material
func (p *EdgeGatewayProcedure) PushConfig(rctx *RequestContext, slot models.Slot, artifact *generator.Artifact) error {
	p.respondJSON(rctx, http.StatusOK, edgeGatewayResponse{
		Status:        "OK",
		Configuration: string(artifact.Content),
	})
	return nil
}

// ErrorResponse answers with a structured error list
func (p *EdgeGatewayProcedure) ErrorResponse(rctx *RequestContext, kind ErrorKind, messages []string) {
	status := http.StatusInternalServerError
	switch kind {
	case ErrorKindValidation:
		status = http.StatusBadRequest
	case ErrorKindTypeMismatch, ErrorKindUnknownDevice:
		status = http.StatusForbidden
	}
	p.respondJSON(rctx, status, edgeGatewayResponse{Status: string(kind), Errors: messages})
}

// FinishResponse confirms the running config stands
func (p *EdgeGatewayProcedure) FinishResponse(ctx context.Context, rctx *RequestContext) error {
	p.respondJSON(rctx, http.StatusOK, edgeGatewayResponse{Status: "OK"})
	return nil
}
