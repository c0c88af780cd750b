package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetd/fleet-server/internal/models"
	"github.com/fleetd/fleet-server/internal/storage"
)

// deviceTypeRequest is the admin create/update payload
type deviceTypeRequest struct {
	Name        string `json:"name" validate:"required"`
	Slug        string `json:"slug" validate:"required,min=2"`
	Protocol    string `json:"protocol" validate:"required"`
	RoutePrefix string `json:"routePrefix" validate:"required"`
	IsEnabled   bool   `json:"isEnabled"`
	Description string `json:"description"`

	FirmwareSlots         models.SlotFlags `json:"firmwareSlots"`
	ConfigSlots           models.SlotFlags `json:"configSlots"`
	AlwaysReinstallConfig models.SlotFlags `json:"alwaysReinstallConfig"`

	HasVPN             bool `json:"hasVpn"`
	HasCertificates    bool `json:"hasCertificates"`
	HasGSM             bool `json:"hasGsm"`
	HasEndpointDevices bool `json:"hasEndpointDevices"`
	HasDeviceCommands  bool `json:"hasDeviceCommands"`

	FieldRequirements models.FieldRequirements `json:"fieldRequirements"`
	VariableOrder     []string                 `json:"variableOrder"`

	RsrpGatingEnabled bool `json:"rsrpGatingEnabled"`
	RequiredMinRsrp   int  `json:"requiredMinRsrp"`
}

func (req *deviceTypeRequest) apply(dt *models.DeviceType) {
	dt.Name = req.Name
	dt.Slug = req.Slug
	dt.Protocol = req.Protocol
	dt.RoutePrefix = req.RoutePrefix
	dt.IsEnabled = req.IsEnabled
	dt.Description = req.Description
	dt.FirmwareSlots = req.FirmwareSlots
	dt.ConfigSlots = req.ConfigSlots
	dt.AlwaysReinstallConfig = req.AlwaysReinstallConfig
	dt.HasVPN = req.HasVPN
	dt.HasCertificates = req.HasCertificates
	dt.HasGSM = req.HasGSM
	dt.HasEndpointDevices = req.HasEndpointDevices
	dt.HasDeviceCommands = req.HasDeviceCommands
	dt.FieldRequirements = req.FieldRequirements
	dt.VariableOrder = req.VariableOrder
	dt.RsrpGatingEnabled = req.RsrpGatingEnabled
	dt.RequiredMinRsrp = req.RequiredMinRsrp
}

// HandleListDeviceTypes lists device types
func (s *RESTServer) HandleListDeviceTypes(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	enabledOnly := r.URL.Query().Get("enabled") == "true"

	types, total, err := s.store.ListDeviceTypes(r.Context(), enabledOnly, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list device types")
		return
	}

	s.respondList(w, types, total)
}

// HandleCreateDeviceType creates a device type
func (s *RESTServer) HandleCreateDeviceType(w http.ResponseWriter, r *http.Request) {
	var req deviceTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	dt := &models.DeviceType{}
	req.apply(dt)

	if err := s.store.CreateDeviceType(r.Context(), dt); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "slug already in use")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "failed to create device type")
		return
	}

	// Routing changed
	s.dispatcher.Invalidate()

	s.respondJSON(w, http.StatusCreated, dt)
}

// HandleGetDeviceType returns one device type
func (s *RESTServer) HandleGetDeviceType(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	dt, err := s.store.GetDeviceType(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "device type not found")
		return
	}

	s.respondJSON(w, http.StatusOK, dt)
}

// HandleUpdateDeviceType updates a device type
func (s *RESTServer) HandleUpdateDeviceType(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	dt, err := s.store.GetDeviceType(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "device type not found")
		return
	}

	var req deviceTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.apply(dt)
	if err := s.store.UpdateDeviceType(r.Context(), dt); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to update device type")
		return
	}

	// Routing changed
	s.dispatcher.Invalidate()

	s.respondJSON(w, http.StatusOK, dt)
}

// HandleDeleteDeviceType deletes a device type
func (s *RESTServer) HandleDeleteDeviceType(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.store.DeleteDeviceType(r.Context(), id); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to delete device type")
		return
	}

	s.dispatcher.Invalidate()

	w.WriteHeader(http.StatusNoContent)
}

// HandleListDeviceTypeCertificateTypes lists certificate type assignments
func (s *RESTServer) HandleListDeviceTypeCertificateTypes(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	assignments, err := s.store.ListDeviceTypeCertificateTypes(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list assignments")
		return
	}

	s.respondJSON(w, http.StatusOK, assignments)
}

// HandleCreateDeviceTypeCertificateType binds a certificate type to a device
// type with its renewal policy.
func (s *RESTServer) HandleCreateDeviceTypeCertificateType(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		CertificateTypeID   uuid.UUID `json:"certificateTypeId" validate:"required"`
		AutoRenew           bool      `json:"autoRenew"`
		AutoRenewDaysBefore int       `json:"autoRenewDaysBefore"`
		VariableName        string    `json:"variableName"`
		Available           bool      `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	assignment := &models.DeviceTypeCertificateType{
		DeviceTypeID:        id,
		CertificateTypeID:   req.CertificateTypeID,
		AutoRenew:           req.AutoRenew,
		AutoRenewDaysBefore: req.AutoRenewDaysBefore,
		VariableName:        req.VariableName,
		Available:           req.Available,
	}

	if err := s.store.CreateDeviceTypeCertificateType(r.Context(), assignment); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to create assignment")
		return
	}

	s.respondJSON(w, http.StatusCreated, assignment)
}

// HandleListDeviceTypeSecrets lists secret policies
func (s *RESTServer) HandleListDeviceTypeSecrets(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	policies, err := s.store.ListDeviceTypeSecrets(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list secret policies")
		return
	}

	s.respondJSON(w, http.StatusOK, policies)
}

// HandleCreateDeviceTypeSecret creates a secret policy
func (s *RESTServer) HandleCreateDeviceTypeSecret(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req struct {
		Name           string                `json:"name" validate:"required"`
		Behavior       models.SecretBehavior `json:"behavior" validate:"required,oneof=STATIC GENERATE GENERATE_RENEW"`
		UseAsVariable  bool                  `json:"useAsVariable"`
		RenewAfterDays int                   `json:"renewAfterDays"`
		Length         int                   `json:"length"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	policy := &models.DeviceTypeSecret{
		DeviceTypeID:   id,
		Name:           req.Name,
		Behavior:       req.Behavior,
		UseAsVariable:  req.UseAsVariable,
		RenewAfterDays: req.RenewAfterDays,
		Length:         req.Length,
	}

	if err := s.store.CreateDeviceTypeSecret(r.Context(), policy); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to create secret policy")
		return
	}

	s.respondJSON(w, http.StatusCreated, policy)
}

// HandleListCertificateTypes lists certificate types
func (s *RESTServer) HandleListCertificateTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.store.ListCertificateTypes(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list certificate types")
		return
	}

	s.respondJSON(w, http.StatusOK, types)
}

// HandleCreateCertificateType creates a certificate type
func (s *RESTServer) HandleCreateCertificateType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name                 string                     `json:"name" validate:"required"`
		Category             models.CertificateCategory `json:"category" validate:"required,oneof=VPN DEVICE SERVER CA"`
		EnableSubjectAltName bool                       `json:"enableSubjectAltName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ct := &models.CertificateType{
		Name:                 req.Name,
		Category:             req.Category,
		EnableSubjectAltName: req.EnableSubjectAltName,
	}

	if err := s.store.CreateCertificateType(r.Context(), ct); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to create certificate type")
		return
	}

	s.respondJSON(w, http.StatusCreated, ct)
}
