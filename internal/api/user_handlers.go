package api

import (
	"encoding/json"
	"net/http"

	"github.com/fleetd/fleet-server/internal/models"
	"github.com/fleetd/fleet-server/pkg/crypto"
)

// HandleListUsers lists users
func (s *RESTServer) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	users, total, err := s.store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	s.respondList(w, users, total)
}

// HandleCreateUser creates a user
func (s *RESTServer) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil || !claims.IsAdmin {
		s.respondError(w, http.StatusForbidden, "admin access required")
		return
	}

	var req struct {
		Email     string `json:"email" validate:"required,email"`
		Username  string `json:"username" validate:"required,min=3"`
		Password  string `json:"password" validate:"required,min=8"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		IsAdmin   bool   `json:"isAdmin"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user := &models.User{
		Email:        req.Email,
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
		IsAdmin:      req.IsAdmin,
		IsActive:     true,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		s.respondError(w, http.StatusConflict, "failed to create user")
		return
	}

	s.respondJSON(w, http.StatusCreated, user)
}

// HandleGetCurrentUser returns the authenticated user
func (s *RESTServer) HandleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "user not found")
		return
	}

	s.respondJSON(w, http.StatusOK, user)
}
