package api

import (
	"crypto/subtle"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fleetd/fleet-server/internal/engine"
)

// HandleFirmwareDownload serves firmware artifacts on the structural
// download path. Any malformed or mismatched segment answers not found; the
// device learns nothing about which part failed.
func (s *RESTServer) HandleFirmwareDownload(w http.ResponseWriter, r *http.Request) {
	req, ok := engine.ParseFirmwareDownloadPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	device, err := s.store.GetDeviceByHashIdentifier(r.Context(), req.DeviceHash)
	if err != nil || device.IsDisabled {
		http.NotFound(w, r)
		return
	}

	dt, err := s.store.GetDeviceTypeBySlug(r.Context(), req.Slug)
	if err != nil || !dt.IsEnabled || dt.ID != device.DeviceTypeID {
		http.NotFound(w, r)
		return
	}

	proc := s.dispatcher.ProcedureFor(dt)
	if proc.FirmwareSecured() {
		if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(device.DownloadSecret)) != 1 {
			http.NotFound(w, r)
			return
		}
	}

	file, err := s.store.GetFirmwareFile(r.Context(), req.FileID)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := s.store.IncrementFirmwareDownloadCount(r.Context(), file.ID); err != nil {
		log.Warn().Err(err).Str("file", file.ID.String()).Msg("count firmware download")
	}

	log.Info().
		Str("device", device.UUID).
		Str("file", file.FileName).
		Msg("Serving firmware download")

	w.Header().Set("Content-Disposition", "attachment; filename=\""+file.FileName+"\"")
	http.ServeFile(w, r, filepath.Join(s.config.Fleet.FirmwareStorageDir, file.StoragePath))
}
