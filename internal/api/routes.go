package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		// Users
		r.Route("/users", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListUsers)
			r.Post("/", s.HandleCreateUser)
			r.Get("/me", s.HandleGetCurrentUser)
		})

		// Device types
		r.Route("/device-types", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListDeviceTypes)
			r.Post("/", s.HandleCreateDeviceType)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetDeviceType)
				r.Put("/", s.HandleUpdateDeviceType)
				r.Delete("/", s.HandleDeleteDeviceType)
				r.Get("/certificate-types", s.HandleListDeviceTypeCertificateTypes)
				r.Post("/certificate-types", s.HandleCreateDeviceTypeCertificateType)
				r.Get("/secrets", s.HandleListDeviceTypeSecrets)
				r.Post("/secrets", s.HandleCreateDeviceTypeSecret)
			})
		})

		// Devices
		r.Route("/devices", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListDevices)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.HandleGetDevice)
				r.Put("/", s.HandleUpdateDevice)
				r.Delete("/", s.HandleDeleteDevice)
				r.Get("/certificates", s.HandleListDeviceCertificates)
				r.Get("/secrets", s.HandleListDeviceSecrets)
				r.Post("/commands", s.HandleQueueDeviceCommand)
			})
		})

		// Certificate types
		r.Route("/certificate-types", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListCertificateTypes)
			r.Post("/", s.HandleCreateCertificateType)
		})

		// Communication logs
		r.Route("/communication-logs", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/", s.HandleListCommunicationLogs)
		})
	})
}
