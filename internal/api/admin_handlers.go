package api

import (
	"archive/zip"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/table-engine/internal/pkg/httputil"
	"github.com/ignite/table-engine/internal/presets"
)

// handleListDeliveries pages through the receipt index.
//
//	GET /admin/deliveries?client_id=&status_filter=&search=&limit=
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			httputil.BadRequest(w, "invalid_limit", "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	deliveries := s.store.ListDeliveries(q.Get("client_id"), q.Get("status_filter"), q.Get("search"), limit)
	httputil.OK(w, map[string]any{
		"deliveries": deliveries,
		"count":      len(deliveries),
	})
}

// handleGetDelivery returns the full receipt of one intake.
//
//	GET /admin/deliveries/{intake_id}?client_id=
func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	intakeID := chi.URLParam(r, "intake_id")
	receipt := s.store.GetReceipt(intakeID, r.URL.Query().Get("client_id"))
	if receipt == nil {
		httputil.NotFound(w, "intake_not_found", "no receipt for intake "+intakeID)
		return
	}
	httputil.OK(w, receipt)
}

// handleDeliveryArtifacts streams the intake directory as a zip file:
// the receipt, the stored source payload, and the request metadata.
//
//	GET /admin/deliveries/{intake_id}/artifacts.zip?client_id=
func (s *Server) handleDeliveryArtifacts(w http.ResponseWriter, r *http.Request) {
	intakeID := chi.URLParam(r, "intake_id")
	receipt := s.store.GetReceipt(intakeID, r.URL.Query().Get("client_id"))
	if receipt == nil {
		httputil.NotFound(w, "intake_not_found", "no receipt for intake "+intakeID)
		return
	}

	receiptPath := receipt.Artifacts["receipt"]
	if receiptPath == "" {
		httputil.NotFound(w, "artifacts_missing", "intake has no stored artifacts")
		return
	}
	dir := filepath.Dir(receiptPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		httputil.NotFound(w, "artifacts_missing", "intake directory is gone")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+intakeID+`_artifacts.zip"`)

	archive := zip.NewWriter(w)
	defer archive.Close()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		dst, err := archive.Create(entry.Name())
		if err == nil {
			io.Copy(dst, file)
		}
		file.Close()
	}
}

// handleReplay re-runs a stored intake synchronously, optionally with
// overridden options.
//
//	POST /admin/deliveries/{intake_id}/replay?client_id=
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	intakeID := chi.URLParam(r, "intake_id")

	var overrides presets.Options
	if r.ContentLength > 0 {
		var raw map[string]any
		if !httputil.Decode(w, r, &raw) {
			return
		}
		overrides = optionsFromJSON(raw)
	}

	receipt, replayErr := s.orchestrator.Replay(r.Context(), intakeID, r.URL.Query().Get("client_id"), overrides)
	if replayErr != nil {
		httputil.Error(w, replayErr.Status, replayErr.Code, replayErr.Message, replayErr.Hint)
		return
	}
	httputil.OK(w, receipt)
}

// handleListPresets lists stored presets, optionally for one client.
//
//	GET /admin/presets?client_id=
func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	found, err := s.presets.List(r.URL.Query().Get("client_id"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"presets": found, "count": len(found)})
}

// handleSavePreset creates or replaces one preset.
//
//	POST /admin/presets
func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var preset presets.Preset
	if !httputil.Decode(w, r, &preset) {
		return
	}
	if err := s.presets.Save(&preset); err != nil {
		httputil.BadRequest(w, "invalid_preset", err.Error())
		return
	}
	httputil.Created(w, preset)
}

// handleDeletePreset removes one preset.
//
//	DELETE /admin/presets/{client_id}/{preset_id}
func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	err := s.presets.Delete(chi.URLParam(r, "client_id"), chi.URLParam(r, "preset_id"))
	if err != nil {
		httputil.NotFound(w, "preset_not_found", err.Error())
		return
	}
	httputil.NoContent(w)
}

// handleSettings exposes the sanitized runtime configuration.
//
//	GET /admin/settings
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, s.cfg.Sanitized())
}
