package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetd/fleet-server/internal/generator"
	"github.com/fleetd/fleet-server/internal/models"
	"github.com/fleetd/fleet-server/internal/storage"
)

// Route is one HTTP route a procedure contributes under a device type's
// route prefix.
type Route struct {
	Method  string
	Pattern string
	// Name disambiguates multiple device types sharing a protocol
	Name string
}

// Procedure handles the check-in protocol of one device type
type Procedure interface {
	Protocol() string
	Routes(dt *models.DeviceType) []Route
	Handle(w http.ResponseWriter, r *http.Request, dt *models.DeviceType, params map[string]string)

	// FirmwareSecured reports whether firmware downloads require the
	// device's download secret.
	FirmwareSecured() bool
}

// Hooks are the protocol-specific points a concrete procedure supplies to
// the shared lifecycle.
type Hooks interface {
	Protocol() string
	Routes(dt *models.DeviceType) []Route
	Requirements() Requirements

	// DecodeRequest parses the transport request into rctx.Payload,
	// appending to rctx.ValidationErrors on malformed fields.
	DecodeRequest(r *http.Request, rctx *RequestContext) error

	// ResolveDevice locates or creates the device, setting rctx.Device and
	// rctx.Created. It may set rctx.Response instead to reject the request.
	ResolveDevice(ctx context.Context, rctx *RequestContext) error

	// GenerateIdentifier derives the display identifier for a new device
	GenerateIdentifier(rctx *RequestContext) string

	// PushFirmware shapes the response for a firmware push
	PushFirmware(rctx *RequestContext, slot models.Slot, assignment *models.FirmwareAssignment, url string) error

	// PushConfig shapes the response for a config push
	PushConfig(rctx *RequestContext, slot models.Slot, artifact *generator.Artifact) error

	// ErrorResponse shapes an error reply in the protocol's own format
	ErrorResponse(rctx *RequestContext, kind ErrorKind, messages []string)

	// HandleDiagnostics runs the protocol's optional extra-data step
	HandleDiagnostics(ctx context.Context, rctx *RequestContext) error

	// FinishResponse shapes the reply when no push happened
	FinishResponse(ctx context.Context, rctx *RequestContext) error

	// ConfigSlotOrder is the order config slots are evaluated in
	ConfigSlotOrder() []models.Slot

	// SendTheSameConfig opts out of identical-content deduplication
	SendTheSameConfig() bool

	FirmwareSecured() bool

	// CustomVariables contributes protocol-specific template variables
	CustomVariables(rctx *RequestContext) []Variable
}

// Base is the shared check-in lifecycle. Concrete procedures embed it and
// register themselves as its hooks.
type Base struct {
	Store     Store
	Identity  *IdentityResolver
	Reinstall *ReinstallEngine
	Certs     *CertificateRenewalEngine
	Secrets   *SecretRotationEngine
	Variables *VariableResolver
	Publisher EventPublisher

	VPNLicensed bool
	// ExternalURL prefixes generated firmware download links
	ExternalURL string

	Logger zerolog.Logger

	hooks Hooks
}

// Bind attaches the concrete procedure's hooks; must run before Handle
func (b *Base) Bind(hooks Hooks) {
	b.hooks = hooks
}

// Handle runs one device check-in end to end and writes the reply
func (b *Base) Handle(w http.ResponseWriter, r *http.Request, dt *models.DeviceType, params map[string]string) {
	ctx := r.Context()

	rctx := NewRequestContext(dt, b.Logger)
	rctx.Params = params

	if err := b.process(ctx, r, rctx); err != nil {
		rctx.Log.Critical("request.failed", fmt.Sprintf("unexpected failure: %v", err))
		if rctx.Response == nil {
			b.hooks.ErrorResponse(rctx, ErrorKindConfiguration, []string{"internal error"})
		}
	}

	if rctx.Response == nil {
		rctx.Response = &Response{StatusCode: http.StatusOK}
	}
	rctx.Response.Write(w)

	rctx.Log.Persist(ctx, b.Store, b.Publisher)
}

// process runs lifecycle steps in their fixed order, short-circuiting on the
// first step that shapes a response.
func (b *Base) process(ctx context.Context, r *http.Request, rctx *RequestContext) error {
	if !b.checkCapabilities(ctx, rctx) {
		return nil
	}

	if err := b.hooks.DecodeRequest(r, rctx); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if !b.checkPayload(rctx) {
		return nil
	}

	if err := b.hooks.ResolveDevice(ctx, rctx); err != nil {
		return fmt.Errorf("resolve device: %w", err)
	}
	if rctx.Response != nil {
		return nil
	}
	if rctx.Device == nil {
		rctx.Log.Warning("identity.unknown", "no device resolved for request")
		b.hooks.ErrorResponse(rctx, ErrorKindUnknownDevice, []string{"unknown device"})
		return nil
	}
	rctx.Log.SetDevice(rctx.Device.ID)

	if rctx.Device.DeviceTypeID != rctx.DeviceType.ID {
		rctx.Log.Warning("identity.type_mismatch",
			fmt.Sprintf("device %s belongs to another device type", rctx.Device.UUID))
		b.hooks.ErrorResponse(rctx, ErrorKindTypeMismatch, []string{"device type mismatch"})
		return nil
	}

	if err := b.loadTemplate(ctx, rctx); err != nil {
		return err
	}

	b.updateTelemetry(rctx)

	if err := b.decideFirmware(ctx, rctx); err != nil {
		return err
	}
	if !rctx.firmwarePushed {
		if err := b.decideConfig(ctx, rctx); err != nil {
			return err
		}
	}

	if err := b.hooks.HandleDiagnostics(ctx, rctx); err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}

	if rctx.DeviceType.HasDeviceCommands {
		b.processCommandAcks(ctx, rctx)
	}

	if rctx.Response == nil {
		if err := b.hooks.FinishResponse(ctx, rctx); err != nil {
			return fmt.Errorf("finish response: %w", err)
		}
	}

	return b.persistDevice(ctx, rctx)
}

// checkCapabilities verifies the device type satisfies everything the
// protocol requires. Failure is a configuration error: critical log, generic
// error reply, no mutation.
func (b *Base) checkCapabilities(ctx context.Context, rctx *RequestContext) bool {
	req := b.hooks.Requirements()

	unmet := req.UnmetFeatures(rctx.DeviceType, b.VPNLicensed)
	var messages []string
	for _, f := range unmet {
		messages = append(messages, fmt.Sprintf("device type lacks required feature %s", f))
	}

	if len(req.RequiredCertificateCategories) > 0 {
		assignments, err := b.Store.ListDeviceTypeCertificateTypes(ctx, rctx.DeviceType.ID)
		if err != nil {
			rctx.Log.Critical("capability.check_failed",
				fmt.Sprintf("could not load certificate assignments: %v", err))
			b.hooks.ErrorResponse(rctx, ErrorKindConfiguration, []string{"configuration error"})
			return false
		}
		for _, c := range req.UnmetCertificateCategories(assignments) {
			messages = append(messages, fmt.Sprintf("device type lacks %s certificate type", c))
		}
	}

	if len(messages) > 0 {
		rctx.Log.Critical("capability.unmet", strings.Join(messages, "; "))
		b.hooks.ErrorResponse(rctx, ErrorKindConfiguration, []string{"configuration error"})
		return false
	}
	return true
}

// checkPayload folds missing required fields into the validation errors and
// shapes the validation reply. An entirely empty payload is a known quirk of
// some routers and logs at info instead of error.
func (b *Base) checkPayload(rctx *RequestContext) bool {
	req := b.hooks.Requirements()
	for _, f := range req.MissingRequiredFields(rctx.Payload) {
		rctx.ValidationErrors = append(rctx.ValidationErrors,
			fmt.Sprintf("field %s is required", f))
	}

	if len(rctx.ValidationErrors) == 0 {
		return true
	}

	message := strings.Join(rctx.ValidationErrors, "; ")
	if payloadEmpty(rctx.Payload) {
		rctx.Log.Info("validation.empty_payload", message)
	} else {
		rctx.Log.Error("validation.failed", message)
	}
	b.hooks.ErrorResponse(rctx, ErrorKindValidation, rctx.ValidationErrors)
	return false
}

func payloadEmpty(p *Payload) bool {
	return p.SerialNumber == "" && p.IMSI == "" && p.IMEI == "" &&
		p.Model == "" && p.Name == "" && len(p.Raw) == 0
}

// loadTemplate resolves the template version once per request, selected by
// the device's staging flag. Absence is not an error.
func (b *Base) loadTemplate(ctx context.Context, rctx *RequestContext) error {
	tv, err := b.Store.GetTemplateVersion(ctx, rctx.DeviceType.ID, rctx.Device.Staging)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load template version: %w", err)
	}
	rctx.Template = tv
	return nil
}

// updateTelemetry copies payload fields onto the device. Capability-gated
// fields only move when the device type enables the capability.
func (b *Base) updateTelemetry(rctx *RequestContext) {
	device := rctx.Device
	dt := rctx.DeviceType
	p := rctx.Payload

	if dt.HasGSM {
		if p.IMEI != "" {
			imei := p.IMEI
			device.IMEI = &imei
		}
		device.Rsrp = p.Rsrp
		device.Rsrq = p.Rsrq
		if p.Operator != "" {
			device.Operator = p.Operator
		}
		if p.CellID != "" {
			device.CellID = p.CellID
		}
	}

	if p.Model != "" {
		model := p.Model
		device.Model = &model
	}
	if p.LocalIP != "" {
		device.LocalIP = p.LocalIP
	}
	if p.PublicIP != "" {
		device.PublicIP = p.PublicIP
	}

	for _, slot := range models.AllSlots {
		if v := p.FirmwareVersions.Get(slot); v != "" {
			device.ReportedFirmware.Set(slot, v)
		}
	}
}

// decideFirmware evaluates firmware slots most-primary first and pushes at
// most one artifact.
func (b *Base) decideFirmware(ctx context.Context, rctx *RequestContext) error {
	for _, slot := range models.AllSlots {
		if !rctx.DeviceType.FirmwareSlots.Get(slot) {
			continue
		}

		if !b.Reinstall.ProcessFirmware(rctx, slot) {
			continue
		}
		if !b.Reinstall.ShouldPushFirmware(rctx, slot, false) {
			continue
		}

		assignment := rctx.Template.FirmwareFor(slot)
		url, err := b.FirmwareDownloadURL(rctx, assignment)
		if err != nil {
			return err
		}
		if err := b.hooks.PushFirmware(rctx, slot, assignment, url); err != nil {
			return fmt.Errorf("push %s firmware: %w", slot, err)
		}
		rctx.firmwarePushed = true
		return nil
	}
	return nil
}

// decideConfig evaluates config slots in protocol order, running the
// rotation gate once before the first slot that is due. Rotating anything
// forces that slot's reinstall so the artifact embeds fresh values.
func (b *Base) decideConfig(ctx context.Context, rctx *RequestContext) error {
	for _, slot := range b.hooks.ConfigSlotOrder() {
		if !b.Reinstall.ShouldEvaluateConfig(rctx, slot, false) {
			continue
		}

		if !rctx.rotationRan {
			rctx.rotationRan = true
			rotated, err := b.runRotations(ctx, rctx)
			if err != nil {
				return err
			}
			if rotated {
				rctx.Device.ReinstallConfig.Set(slot, true)
			}
		}

		vars, err := b.Variables.Resolve(ctx, rctx, ResolveOptions{
			Custom: b.hooks.CustomVariables(rctx),
		})
		if err != nil {
			return fmt.Errorf("resolve variables: %w", err)
		}

		artifact, push, err := b.Reinstall.HandleConfigGeneration(ctx, rctx, slot, b.hooks.SendTheSameConfig(), b.renderVariables(rctx, vars))
		if err != nil {
			return err
		}
		if !push {
			continue
		}

		if err := b.hooks.PushConfig(rctx, slot, artifact); err != nil {
			return fmt.Errorf("push %s config: %w", slot, err)
		}
		rctx.configPushed = true
		return nil
	}
	return nil
}

// renderVariables narrows the resolved set to the device type's explicit
// variable order when one is configured. Indexed families expand across the
// device's virtual subnet.
func (b *Base) renderVariables(rctx *RequestContext, vars *VariableSet) map[string]string {
	order := rctx.DeviceType.VariableOrder
	if len(order) == 0 {
		return vars.Map()
	}
	out := make(map[string]string, len(order))
	for _, v := range vars.Ordered(order, rctx.Device.VirtualSubnetSize) {
		out[v.Name] = v.Value
	}
	return out
}

// runRotations runs the certificate and secret engines. Their item failures
// are already non-fatal; only infrastructure errors surface here.
func (b *Base) runRotations(ctx context.Context, rctx *RequestContext) (bool, error) {
	certsRotated, err := b.Certs.Run(ctx, rctx)
	if err != nil {
		return false, fmt.Errorf("certificate renewal: %w", err)
	}
	secretsRotated, err := b.Secrets.Run(ctx, rctx)
	if err != nil {
		return false, fmt.Errorf("secret rotation: %w", err)
	}
	return certsRotated || secretsRotated, nil
}

// processCommandAcks marks acknowledged commands and is tolerant of unknown
// transaction ids.
func (b *Base) processCommandAcks(ctx context.Context, rctx *RequestContext) {
	now := time.Now()
	for _, txID := range rctx.Payload.CommandAcks {
		cmd, err := b.Store.GetDeviceCommandByTransactionID(ctx, txID)
		if err != nil {
			rctx.Log.Warning("command.unknown_ack",
				fmt.Sprintf("acknowledged transaction %s not found", txID))
			continue
		}
		cmd.Status = models.CommandStatusAcked
		cmd.AckedAt = &now
		if err := b.Store.UpdateDeviceCommand(ctx, cmd); err != nil {
			rctx.Log.Warning("command.ack_failed",
				fmt.Sprintf("could not persist ack for %s: %v", txID, err))
			continue
		}
		rctx.Log.Info("command.acked", fmt.Sprintf("command %s acknowledged", txID))
	}
}

// PendingCommands loads the device's queued commands and stamps them sent.
// Procedures supporting device commands attach them to their response.
func (b *Base) PendingCommands(ctx context.Context, rctx *RequestContext) ([]*models.DeviceCommand, error) {
	commands, err := b.Store.ListPendingDeviceCommands(ctx, rctx.Device.ID)
	if err != nil {
		return nil, fmt.Errorf("list pending commands: %w", err)
	}
	now := time.Now()
	for _, cmd := range commands {
		cmd.Status = models.CommandStatusSent
		cmd.SentAt = &now
		if err := b.Store.UpdateDeviceCommand(ctx, cmd); err != nil {
			rctx.Log.Warning("command.send_failed",
				fmt.Sprintf("could not stamp command %s sent: %v", cmd.TransactionID, err))
		}
	}
	return commands, nil
}

// FirmwareDownloadURL builds the download link for an assignment. A missing
// file source is an unexpected state and surfaces as an error.
func (b *Base) FirmwareDownloadURL(rctx *RequestContext, assignment *models.FirmwareAssignment) (string, error) {
	if assignment == nil || assignment.FileID == uuid.Nil || assignment.FileName == "" {
		return "", fmt.Errorf("firmware assignment has no usable file source")
	}
	device := rctx.Device
	return fmt.Sprintf("%s/df/%s/%s/%s/%s/%s",
		strings.TrimRight(b.ExternalURL, "/"),
		device.HashIdentifier,
		device.DownloadSecret,
		rctx.DeviceType.Slug,
		assignment.FileID,
		assignment.FileName), nil
}

// persistDevice writes the device state back and bumps the connection
// counter, the final step of every successful request.
func (b *Base) persistDevice(ctx context.Context, rctx *RequestContext) error {
	now := time.Now()
	rctx.Device.LastSeenAt = &now
	rctx.Device.ConnectionCount++
	if err := b.Store.UpdateDevice(ctx, rctx.Device); err != nil {
		return fmt.Errorf("persist device: %w", err)
	}
	return nil
}
