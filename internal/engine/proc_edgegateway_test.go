package engine

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetd/fleet-server/internal/models"
)

func edgeGatewayFixture() (*memStore, *models.DeviceType, *EdgeGatewayProcedure) {
	store := newMemStore()
	dt := store.addDeviceType(&models.DeviceType{
		Name:                         "vpn container",
		Slug:                         "vpn-container",
		Protocol:                     ProtocolEdgeGateway,
		IsEnabled:                    true,
		RoutePrefix:                  "/vpnc",
		ConfigSlots:                  models.SlotFlags{true, false, false},
		HasVPN:                       true,
		HasCertificates:              true,
		VPNCertificateTypeConfigured: true,
	})

	for _, category := range []models.CertificateCategory{
		models.CertificateCategoryVPN, models.CertificateCategoryCA,
	} {
		certType := &models.CertificateType{Name: string(category), Category: category}
		certType.ID = newTestID()
		assignment := &models.DeviceTypeCertificateType{
			DeviceTypeID:      dt.ID,
			CertificateTypeID: certType.ID,
			Available:         true,
			CertificateType:   certType,
		}
		assignment.ID = newTestID()
		store.certTypes[dt.ID] = append(store.certTypes[dt.ID], assignment)
	}

	base := baseFixture(store)
	base.VPNLicensed = true
	return store, dt, NewEdgeGatewayProcedure(base)
}

func postEdgeCheckin(t *testing.T, proc *EdgeGatewayProcedure, dt *models.DeviceType, body map[string]interface{}) (*httptest.ResponseRecorder, edgeGatewayResponse) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/vpnc/config", bytes.NewReader(data))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	proc.Handle(w, r, dt, nil)

	var resp edgeGatewayResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestEdgeGatewayRejectsUnknownDevice(t *testing.T) {
	_, dt, proc := edgeGatewayFixture()

	w, resp := postEdgeCheckin(t, proc, dt, map[string]interface{}{
		"uuid": "00000000-0000-0000-0000-00000000dead",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(ErrorKindUnknownDevice), resp.Status)
}

func TestEdgeGatewayFindsProvisionedDevice(t *testing.T) {
	store, dt, proc := edgeGatewayFixture()
	device := store.addDevice(&models.Device{
		DeviceTypeID: dt.ID,
		Name:         "container-1",
		UUID:         "11111111-1111-1111-1111-111111111111",
	})

	w, resp := postEdgeCheckin(t, proc, dt, map[string]interface{}{
		"uuid": device.UUID,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", resp.Status)

	stored := store.devices[device.ID]
	assert.EqualValues(t, 1, stored.ConnectionCount)
	// Still exactly one device: check-ins never provision
	assert.Len(t, store.devices, 1)
}

func TestEdgeGatewayRequiresUUID(t *testing.T) {
	_, dt, proc := edgeGatewayFixture()

	w, resp := postEdgeCheckin(t, proc, dt, map[string]interface{}{"version": "1.0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(ErrorKindValidation), resp.Status)
}

func TestEdgeGatewayCapabilityGateWithoutLicense(t *testing.T) {
	store, dt, _ := edgeGatewayFixture()
	base := baseFixture(store)
	base.VPNLicensed = false
	proc := NewEdgeGatewayProcedure(base)

	w, resp := postEdgeCheckin(t, proc, dt, map[string]interface{}{
		"uuid": "11111111-1111-1111-1111-111111111111",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(ErrorKindConfiguration), resp.Status)
}

func TestEdgeGatewayCapabilityGateMissingCACert(t *testing.T) {
	store, dt, _ := edgeGatewayFixture()
	// Drop the CA assignment
	store.certTypes[dt.ID] = store.certTypes[dt.ID][:1]

	base := baseFixture(store)
	base.VPNLicensed = true
	proc := NewEdgeGatewayProcedure(base)

	w, resp := postEdgeCheckin(t, proc, dt, map[string]interface{}{
		"uuid": "11111111-1111-1111-1111-111111111111",
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(ErrorKindConfiguration), resp.Status)
}
