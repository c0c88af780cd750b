package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fleetd/fleet-server/internal/generator"
	"github.com/fleetd/fleet-server/internal/models"
)

// ProtocolFlexEdge is the JSON check-in protocol spoken by FlexEdge gateway
// units. The response always carries a configuration field holding either
// the sentinel no-change value or the rendered payload.
const ProtocolFlexEdge = "flexedge"

// flexEdgeNoChange is the sentinel the unit treats as "keep running config"
const flexEdgeNoChange = "NO_CHANGE"

// flexEdgeRequest is the JSON check-in body
type flexEdgeRequest struct {
	SerialNumber  string `json:"serialNumber"`
	Model         string `json:"model"`
	Name          string `json:"name"`
	Firmware      string `json:"firmwareVersion"`
	CurrentConfig string `json:"currentConfiguration"`
	LocalIP       string `json:"localIp"`

	// Acks lists transaction ids of commands the unit completed
	Acks []string `json:"commandAcks"`
}

// flexEdgeResponse is the JSON reply
type flexEdgeResponse struct {
	Status        string   `json:"status"`
	Configuration string   `json:"configuration"`
	FirmwareURL   string   `json:"firmwareUrl,omitempty"`
	Commands      []string `json:"commands,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// FlexEdgeProcedure handles the FlexEdge JSON protocol
type FlexEdgeProcedure struct {
	Base
	hookDefaults
}

// NewFlexEdgeProcedure creates the FlexEdge procedure
func NewFlexEdgeProcedure(base Base) *FlexEdgeProcedure {
	p := &FlexEdgeProcedure{Base: base}
	p.Bind(p)
	return p
}

// Protocol returns the protocol name
func (p *FlexEdgeProcedure) Protocol() string { return ProtocolFlexEdge }

// Routes contributes the JSON check-in route
func (p *FlexEdgeProcedure) Routes(dt *models.DeviceType) []Route {
	return []Route{{
		Method:  http.MethodPost,
		Pattern: "/checkin",
		Name:    "flexedge-checkin-" + dt.ID.String(),
	}}
}

// Requirements declares what the device type must provide
func (p *FlexEdgeProcedure) Requirements() Requirements {
	return Requirements{
		RequiredFeatures: []Feature{FeatureConfig},
		OptionalFeatures: []Feature{FeatureFirmware, FeatureDeviceCommands},
		Fields:           models.FieldRequirements{models.DeviceFieldSerialNumber: models.FieldRequired},
	}
}

// DecodeRequest parses the JSON body
func (p *FlexEdgeProcedure) DecodeRequest(r *http.Request, rctx *RequestContext) error {
	var req flexEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rctx.ValidationErrors = append(rctx.ValidationErrors, "malformed JSON payload")
		return nil
	}

	pl := rctx.Payload
	pl.SerialNumber = strings.TrimSpace(req.SerialNumber)
	pl.Model = req.Model
	pl.Name = req.Name
	pl.LocalIP = req.LocalIP
	pl.PublicIP = remoteIP(r)
	pl.FirmwareVersions.Set(models.SlotPrimary, req.Firmware)
	pl.CommandAcks = req.Acks
	if req.CurrentConfig != "" {
		pl.CurrentConfigs[models.SlotPrimary] = []byte(req.CurrentConfig)
	}
	pl.Raw = models.Variables{
		"serialNumber":    req.SerialNumber,
		"model":           req.Model,
		"firmwareVersion": req.Firmware,
	}
	return nil
}

// ResolveDevice locates the unit by serial number, creating on first contact
func (p *FlexEdgeProcedure) ResolveDevice(ctx context.Context, rctx *RequestContext) error {
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

// respondJSON shapes a JSON reply
func (p *FlexEdgeProcedure) respondJSON(rctx *RequestContext, status int, body flexEdgeResponse) {
	data, _ := json.Marshal(body)
	rctx.Response = &Response{
		StatusCode:  status,
		ContentType: "application/json",
		Body:        data,
	}
}

// PushFirmware answers with the firmware URL and no config change
func (p *FlexEdgeProcedure) PushFirmware(rctx *RequestContext, slot models.Slot, assignment *models.FirmwareAssignment, url string) error {
	p.respondJSON(rctx, http.StatusOK, flexEdgeResponse{
		Status:        "OK",
		Configuration: flexEdgeNoChange,
		FirmwareURL:   url,
	})
	return nil
}

// PushConfig answers with the serialized configuration payload
func (p *FlexEdgeProcedure) PushConfig(rctx *RequestContext, slot models.Slot, artifact *generator.Artifact) error {
	p.respondJSON(rctx, http.StatusOK, flexEdgeResponse{
		Status:        "OK",
		Configuration: string(artifact.Content),
	})
	return nil
}

// ErrorResponse answers with a structured error list
func (p *FlexEdgeProcedure) ErrorResponse(rctx *RequestContext, kind ErrorKind, messages []string) {
	status := http.StatusInternalServerError
	switch kind {
	case ErrorKindValidation:
		status = http.StatusBadRequest
	case ErrorKindTypeMismatch, ErrorKindUnknownDevice:
		status = http.StatusForbidden
	}
	p.respondJSON(rctx, status, flexEdgeResponse{
		Status:        string(kind),
		Configuration: flexEdgeNoChange,
		Errors:        messages,
	})
}

// FinishResponse answers the no-change sentinel, attaching any pending
// commands when the device type supports them.
func (p *FlexEdgeProcedure) FinishResponse(ctx context.Context, rctx *RequestContext) error {
	body := flexEdgeResponse{Status: "OK", Configuration: flexEdgeNoChange}

	if rctx.DeviceType.HasDeviceCommands {
		commands, err := p.PendingCommands(ctx, rctx)
		if err != nil {
			return err
		}
		for _, cmd := range commands {
			body.Commands = append(body.Commands, cmd.TransactionID+":"+cmd.Command)
		}
	}

	p.respondJSON(rctx, http.StatusOK, body)
	return nil
}
