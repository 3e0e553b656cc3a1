package api

import (
	"io"
	"net/http"

	"github.com/ignite/table-engine/internal/engine"
	"github.com/ignite/table-engine/internal/pkg/httputil"
	"github.com/ignite/table-engine/internal/pkg/logger"
	"github.com/ignite/table-engine/internal/presets"
	"github.com/ignite/table-engine/internal/rules"
)

// handleParse normalizes one uploaded file and returns the parse
// envelope. The endpoint never hard-fails on bad tabular input: any
// pipeline error degrades to the low-confidence fallback envelope so
// callers always get the same shape back.
//
//	POST /parse
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.Parse.MaxSizeBytes())+1024)
	if err := r.ParseMultipartForm(int64(s.cfg.Parse.MaxSizeBytes())); err != nil {
		httputil.BadRequest(w, "invalid_multipart", "expected multipart/form-data with a file part: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing_file", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		httputil.BadRequest(w, "unreadable_file", err.Error())
		return
	}

	// Query params and form fields both carry options; form wins.
	opts := optionsFromGetter(func(key string) string {
		if v := r.FormValue(key); v != "" {
			return v
		}
		return r.URL.Query().Get(key)
	})
	clientID := firstNonEmpty(r.FormValue("client_id"), r.URL.Query().Get("client_id"))
	presetID := firstNonEmpty(r.FormValue("preset_id"), r.URL.Query().Get("preset_id"))
	opts = s.mergePreset(clientID, presetID, opts)

	req := buildEngineRequest(fileBytes, header.Filename, clientID, opts)
	exec, err := s.eng.Parse(r.Context(), req)
	if err != nil {
		logger.Warn("parse degraded to fallback",
			"filename", header.Filename, "error", err.Error())
		httputil.OK(w, engine.Fallback(req, err))
		return
	}
	httputil.OK(w, exec.Response)
}

// handleParseBatch is a declared surface without an implementation yet.
//
//	POST /parse/batch
func (s *Server) handleParseBatch(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusNotImplemented, map[string]string{
		"status": "not_implemented",
	})
}

// handleListRules lists the rule files the engine can match against.
//
//	GET /rules
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	names := rules.ListNames(s.cfg.Parse.RulesDir)
	httputil.OK(w, map[string]any{"rules": names, "count": len(names)})
}

// mergePreset overlays request options on top of stored client
// defaults. A missing preset is not an error; the request options are
// used as-is.
func (s *Server) mergePreset(clientID, presetID string, overrides presets.Options) presets.Options {
	if s.presets == nil || presetID == "" {
		return overrides
	}
	preset, err := s.presets.Load(clientID, presetID)
	if err != nil {
		return overrides
	}
	return presets.Merge(preset.Defaults, overrides)
}

func buildEngineRequest(fileBytes []byte, filename, clientID string, opts presets.Options) *engine.Request {
	req := &engine.Request{
		FileBytes: fileBytes,
		Filename:  filename,
		ClientID:  clientID,
		EnableLLM: opts.EnableLLM,
		HeaderRow: opts.HeaderRow,
		DayFirst:  opts.DayFirst,
	}
	if opts.Adapter != nil {
		req.Adapter = *opts.Adapter
	}
	if opts.SourceHint != nil {
		req.SourceHint = *opts.SourceHint
	}
	if opts.SheetName != nil {
		req.SheetName = *opts.SheetName
	}
	if opts.DecimalStyle != nil {
		req.DecimalStyle = *opts.DecimalStyle
	}
	if opts.DryRun != nil {
		req.DryRun = *opts.DryRun
	}
	return req
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
