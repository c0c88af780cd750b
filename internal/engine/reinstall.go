package engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/fleetd/fleet-server/internal/generator"
	"github.com/fleetd/fleet-server/internal/models"
)

// ReinstallEngine decides, per feature slot, whether a firmware or config
// push is due on this check-in.
type ReinstallEngine struct {
	generator generator.Generator
}

// NewReinstallEngine creates a reinstall decision engine
func NewReinstallEngine(gen generator.Generator) *ReinstallEngine {
	return &ReinstallEngine{generator: gen}
}

// NormalizeVersion strips a leading v/V so reported and assigned versions
// compare on the number alone.
func NormalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 0 && (v[0] == 'v' || v[0] == 'V') {
		return v[1:]
	}
	return v
}

// IsRsrpValid reports whether the device's signal clears the push gate.
// RSRP values are negative dBm; lower magnitude means stronger signal, so the
// reported magnitude must not exceed the required one. A missing reading
// passes, gating only withholds on a known-bad signal.
func IsRsrpValid(dt *models.DeviceType, reported *int) bool {
	if !dt.RsrpGatingEnabled || reported == nil {
		return true
	}
	required := dt.RequiredMinRsrp
	if required < 0 {
		required = -required
	}
	rep := *reported
	if rep < 0 {
		rep = -rep
	}
	return required >= rep
}

// ProcessFirmware compares the reported firmware version for a slot against
// the template assignment and maintains the device's reinstall flag. It
// returns whether the flag is set after processing. Absence of a template or
// of an assignment for the slot declines: it never counts as up to date.
func (e *ReinstallEngine) ProcessFirmware(rctx *RequestContext, slot models.Slot) bool {
	device := rctx.Device

	if rctx.Template == nil {
		rctx.Log.Info("firmware.no_template",
			fmt.Sprintf("no template version resolved, cannot evaluate %s firmware", slot))
		return false
	}

	assignment := rctx.Template.FirmwareFor(slot)
	if assignment == nil || assignment.Version == "" {
		rctx.Log.Info("firmware.no_assignment",
			fmt.Sprintf("template has no %s firmware assigned", slot))
		return false
	}

	reported := NormalizeVersion(rctx.Payload.FirmwareVersions.Get(slot))
	wanted := NormalizeVersion(assignment.Version)

	if reported == wanted {
		if device.ReinstallFirmware.Get(slot) {
			device.ReinstallFirmware.Set(slot, false)
			rctx.Log.Info("firmware.up_to_date",
				fmt.Sprintf("%s firmware %s now reported, cleared reinstall flag", slot, wanted))
		}
		return false
	}

	if !device.ReinstallFirmware.Get(slot) {
		device.ReinstallFirmware.Set(slot, true)
	}
	rctx.Log.Info("firmware.outdated",
		fmt.Sprintf("%s firmware reported %q, assigned %q", slot, reported, wanted))
	return true
}

// ShouldPushFirmware reports whether the firmware for a slot should actually
// be sent now: the reinstall flag must be set and the signal gate must pass
// unless the caller overrides it.
func (e *ReinstallEngine) ShouldPushFirmware(rctx *RequestContext, slot models.Slot, override bool) bool {
	if !rctx.Device.ReinstallFirmware.Get(slot) {
		return false
	}
	if override {
		return true
	}
	if !IsRsrpValid(rctx.DeviceType, rctx.Payload.Rsrp) {
		rctx.Log.Info("firmware.rsrp_gated",
			fmt.Sprintf("%s firmware push withheld, signal below required threshold", slot))
		return false
	}
	return true
}

// ShouldEvaluateConfig reports whether a config push is even considered for a
// slot: the device type forces it, the device's own flag is set, or the
// caller asks explicitly.
func (e *ReinstallEngine) ShouldEvaluateConfig(rctx *RequestContext, slot models.Slot, explicit bool) bool {
	if !rctx.DeviceType.ConfigSlots.Get(slot) {
		return false
	}
	return explicit ||
		rctx.DeviceType.AlwaysReinstallConfig.Get(slot) ||
		rctx.Device.ReinstallConfig.Get(slot)
}

// HandleConfigGeneration renders the config for a slot and decides whether to
// send it. The artifact is byte-compared against the config the device just
// reported as applied; identical content is declined (flag cleared, logged)
// unless sendTheSameConfig opts out of the optimization. The second return is
// true when the artifact should be pushed.
func (e *ReinstallEngine) HandleConfigGeneration(ctx context.Context, rctx *RequestContext, slot models.Slot, sendTheSameConfig bool, variables map[string]string) (*generator.Artifact, bool, error) {
	device := rctx.Device

	if rctx.Template == nil {
		rctx.Log.Info("config.no_template",
			fmt.Sprintf("no template version resolved, cannot generate %s config", slot))
		return nil, false, nil
	}

	artifact, err := e.generator.Generate(ctx, rctx.DeviceType, device, slot, rctx.Template.ConfigFor(slot), variables)
	if err != nil {
		return nil, false, fmt.Errorf("generate %s config: %w", slot, err)
	}
	if !artifact.Generated {
		rctx.Log.Info("config.not_generated",
			fmt.Sprintf("no %s config could be generated", slot))
		return nil, false, nil
	}

	current := rctx.Payload.CurrentConfigs[slot]
	if len(current) > 0 && bytes.Equal(current, artifact.Content) {
		if sendTheSameConfig {
			rctx.Log.Info("config.same_resent",
				fmt.Sprintf("%s config unchanged, sending anyway", slot))
			return artifact, true, nil
		}
		device.ReinstallConfig.Set(slot, false)
		rctx.Log.Info("config.no_need",
			fmt.Sprintf("%s config identical to applied one, no need to send", slot))
		return nil, false, nil
	}

	device.ReinstallConfig.Set(slot, false)
	rctx.Log.Info("config.pushed",
		fmt.Sprintf("sending %s config (%d bytes)", slot, len(artifact.Content)))
	return artifact, true, nil
}
