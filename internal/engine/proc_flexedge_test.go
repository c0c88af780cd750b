package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetd/fleet-server/internal/models"
)

func flexEdgeFixture() (*memStore, *models.DeviceType, *FlexEdgeProcedure) {
	store := newMemStore()
	dt := store.addDeviceType(&models.DeviceType{
		Name:              "flexedge",
		Slug:              "flexedge",
		Protocol:          ProtocolFlexEdge,
		IsEnabled:         true,
		RoutePrefix:       "/flexedge",
		ConfigSlots:       models.SlotFlags{true, false, false},
		HasDeviceCommands: true,
		FieldRequirements: models.FieldRequirements{
			models.DeviceFieldSerialNumber: models.FieldRequired,
		},
	})
	return store, dt, NewFlexEdgeProcedure(baseFixture(store))
}

func postCheckin(t *testing.T, proc *FlexEdgeProcedure, dt *models.DeviceType, body map[string]interface{}) (*httptest.ResponseRecorder, flexEdgeResponse) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/flexedge/checkin", bytes.NewReader(data))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	proc.Handle(w, r, dt, nil)

	var resp flexEdgeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestFlexEdgeCheckinNoChange(t *testing.T) {
	_, dt, proc := flexEdgeFixture()

	w, resp := postCheckin(t, proc, dt, map[string]interface{}{
		"serialNumber": "FE100", "model": "FE-2000",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, "NO_CHANGE", resp.Configuration)
	assert.Empty(t, resp.Commands)
}

func TestFlexEdgeCheckinDeliversAndAcksCommands(t *testing.T) {
	store, dt, proc := flexEdgeFixture()

	// First contact creates the device
	_, _ = postCheckin(t, proc, dt, map[string]interface{}{"serialNumber": "FE100"})
	device, err := store.GetDeviceBySerialNumber(context.Background(), "FE100")
	require.NoError(t, err)

	cmd := &models.DeviceCommand{
		DeviceID:      device.ID,
		TransactionID: "tx-1",
		Command:       "reboot",
		Status:        models.CommandStatusPending,
	}
	cmd.ID = newTestID()
	store.commands["tx-1"] = cmd

	_, resp := postCheckin(t, proc, dt, map[string]interface{}{"serialNumber": "FE100"})
	require.Len(t, resp.Commands, 1)
	assert.Equal(t, "tx-1:reboot", resp.Commands[0])
	assert.Equal(t, models.CommandStatusSent, store.commands["tx-1"].Status)
	require.NotNil(t, store.commands["tx-1"].SentAt)

	// The unit acknowledges on its next check-in
	_, _ = postCheckin(t, proc, dt, map[string]interface{}{
		"serialNumber": "FE100",
		"commandAcks":  []string{"tx-1"},
	})
	assert.Equal(t, models.CommandStatusAcked, store.commands["tx-1"].Status)
	require.NotNil(t, store.commands["tx-1"].AckedAt)
}

func TestFlexEdgeCheckinMalformedJSON(t *testing.T) {
	_, dt, proc := flexEdgeFixture()

	r := httptest.NewRequest(http.MethodPost, "/flexedge/checkin", bytes.NewReader([]byte("{broken")))
	w := httptest.NewRecorder()
	proc.Handle(w, r, dt, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp flexEdgeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(ErrorKindValidation), resp.Status)
	assert.NotEmpty(t, resp.Errors)
}

func TestFlexEdgeCheckinConfigDedup(t *testing.T) {
	store, dt, proc := flexEdgeFixture()
	dt.AlwaysReinstallConfig = models.SlotFlags{true, false, false}
	store.templates[dt.ID] = &models.TemplateVersion{
		DeviceTypeID: dt.ID,
		Configs: [models.SlotCount]*models.ConfigAssignment{
			{TemplateName: "main"},
		},
	}

	_, resp := postCheckin(t, proc, dt, map[string]interface{}{"serialNumber": "FE100"})
	assert.Equal(t, "rendered config", resp.Configuration)

	// Reporting the applied config back suppresses the resend
	_, resp = postCheckin(t, proc, dt, map[string]interface{}{
		"serialNumber":         "FE100",
		"currentConfiguration": "rendered config",
	})
	assert.Equal(t, "NO_CHANGE", resp.Configuration)
}
