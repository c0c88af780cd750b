package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
)

// HandleListDevices lists devices, optionally by device type
func (s *RESTServer) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	var deviceTypeID *uuid.UUID
	if raw := r.URL.Query().Get("device_type_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid device_type_id")
			return
		}
		deviceTypeID = &id
	}

	devices, total, err := s.store.ListDevices(r.Context(), deviceTypeID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	s.respondList(w, devices, total)
}

// HandleGetDevice returns one device
func (s *RESTServer) HandleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	device, err := s.store.GetDevice(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "device not found")
		return
	}

	s.respondJSON(w, http.StatusOK, device)
}

// HandleUpdateDevice updates administrator-editable device fields
func (s *RESTServer) HandleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	device, err := s.store.GetDevice(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "device not found")
		return
	}

	var req struct {
		Name              *string           `json:"name"`
		Staging           *bool             `json:"staging"`
		IsDisabled        *bool             `json:"isDisabled"`
		VPNIP             *string           `json:"vpnIp"`
		VirtualSubnetSize *int              `json:"virtualSubnetSize"`
		ReinstallFirmware *models.SlotFlags `json:"reinstallFirmware"`
		ReinstallConfig   *models.SlotFlags `json:"reinstallConfig"`
		DeviceVariables   models.Variables  `json:"deviceVariables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		device.Name = *req.Name
	}
	if req.Staging != nil {
		device.Staging = *req.Staging
	}
	if req.IsDisabled != nil {
		device.IsDisabled = *req.IsDisabled
	}
	if req.VPNIP != nil {
		device.VPNIP = *req.VPNIP
	}
	if req.VirtualSubnetSize != nil {
		device.VirtualSubnetSize = *req.VirtualSubnetSize
	}
	if req.ReinstallFirmware != nil {
		device.ReinstallFirmware = *req.ReinstallFirmware
	}
	if req.ReinstallConfig != nil {
		device.ReinstallConfig = *req.ReinstallConfig
	}
	if req.DeviceVariables != nil {
		device.DeviceVariables = req.DeviceVariables
	}

	if err := s.store.UpdateDevice(r.Context(), device); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to update device")
		return
	}

	s.respondJSON(w, http.StatusOK, device)
}

// HandleDeleteDevice deletes a device. Only administrators delete devices;
// the engine itself never does.
func (s *RESTServer) HandleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.store.DeleteDevice(r.Context(), id); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListDeviceCertificates lists a device's certificates. Material stays
// encrypted; only metadata is exposed.
func (s *RESTServer) HandleListDeviceCertificates(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	certs, err := s.store.ListDeviceCertificates(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list certificates")
		return
	}

	s.respondJSON(w, http.StatusOK, certs)
}

// HandleListDeviceSecrets lists a device's secrets. Values stay encrypted.
func (s *RESTServer) HandleListDeviceSecrets(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	secrets, err := s.store.ListDeviceSecrets(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list secrets")
		return
	}

	s.respondJSON(w, http.StatusOK, secrets)
}

// HandleQueueDeviceCommand queues a command for delivery on the device's
// next check-in.
func (s *RESTServer) HandleQueueDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	device, err := s.store.GetDevice(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "device not found")
		return
	}

	dt, err := s.store.GetDeviceType(r.Context(), device.DeviceTypeID)
	if err != nil || !dt.HasDeviceCommands {
		s.respondError(w, http.StatusConflict, "device type does not support commands")
		return
	}

	var req struct {
		Command string `json:"command" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	txID, err := s.identity.GenerateTransactionID(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate transaction id")
		return
	}

	cmd := &models.DeviceCommand{
		DeviceID:      device.ID,
		TransactionID: txID,
		Command:       req.Command,
		Status:        models.CommandStatusPending,
	}
	if err := s.store.CreateDeviceCommand(r.Context(), cmd); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to queue command")
		return
	}

	s.respondJSON(w, http.StatusCreated, cmd)
}
