package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/table-engine/internal/intake"
	"github.com/ignite/table-engine/internal/pkg/httputil"
	"github.com/ignite/table-engine/internal/presets"
)

// HeaderIdempotencyKey carries the caller-chosen duplicate suppression
// key. JSON intakes must send it; multipart intakes fall back to a key
// derived from the payload bytes.
const HeaderIdempotencyKey = "X-UTE-Idempotency-Key"

type intakePayload struct {
	filename  string
	fileBytes []byte
	metadata  map[string]any
	options   presets.Options
	clientID  string
}

// handleIntake receives one webhook delivery, multipart or JSON.
//
//	POST /webhook/v1/intake
//	POST /webhook/v1/intake/{client_id}
//	POST /webhook/v1/intake/{client_id}/{preset_id}
func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Webhook.Enabled {
		httputil.NotFound(w, "webhook_disabled", "webhook intake is not enabled")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.Parse.MaxSizeBytes()))
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "payload_too_large",
			"request body exceeds the upload limit", "")
		return
	}

	pathClient := chi.URLParam(r, "client_id")
	presetID := chi.URLParam(r, "preset_id")

	if authErr := s.auth.Verify(r, rawBody, pathClient); authErr != nil {
		httputil.Error(w, authErr.Status, authErr.Code, authErr.Message, authErr.Hint)
		return
	}

	var payload *intakePayload
	var payloadErr *intake.Error
	if isMultipart(r) {
		payload, payloadErr = s.readMultipartIntake(r, rawBody)
	} else {
		payload, payloadErr = s.readJSONIntake(r, rawBody)
	}
	if payloadErr != nil {
		httputil.Error(w, payloadErr.Status, payloadErr.Code, payloadErr.Message, payloadErr.Hint)
		return
	}

	clientID := firstNonEmpty(pathClient, payload.clientID, "default")

	// Query params override body options; preset defaults sit below both.
	opts := presets.Merge(payload.options, optionsFromGetter(r.URL.Query().Get))
	opts = s.mergePreset(clientID, presetID, opts)

	idempotencyKey := r.Header.Get(HeaderIdempotencyKey)
	if idempotencyKey == "" {
		if !isMultipart(r) {
			httputil.BadRequest(w, "missing_idempotency_key",
				"JSON intakes must send "+HeaderIdempotencyKey)
			return
		}
		idempotencyKey = intake.GenerateIdempotencyKey(clientID, payload.fileBytes)
	}

	sync := !s.cfg.Webhook.AsyncDefault
	if opts.Sync != nil {
		sync = *opts.Sync
	}

	receipt, err := s.orchestrator.Submit(r.Context(), &intake.Submission{
		ClientID:       clientID,
		PresetID:       presetID,
		Filename:       payload.filename,
		FileBytes:      payload.fileBytes,
		Metadata:       payload.metadata,
		IdempotencyKey: idempotencyKey,
		Options:        opts,
		Sync:           sync,
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	status := http.StatusOK
	if receipt.Status == "queued" {
		status = http.StatusAccepted
	}
	httputil.JSON(w, status, receipt)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/")
}

func (s *Server) readMultipartIntake(r *http.Request, rawBody []byte) (*intakePayload, *intake.Error) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || params["boundary"] == "" {
		return nil, &intake.Error{Status: http.StatusBadRequest, Code: "invalid_multipart",
			Message: "malformed multipart content type"}
	}

	reader := multipart.NewReader(bytes.NewReader(rawBody), params["boundary"])
	form, err := reader.ReadForm(int64(s.cfg.Parse.MaxSizeBytes()))
	if err != nil {
		return nil, &intake.Error{Status: http.StatusBadRequest, Code: "invalid_multipart",
			Message: "unreadable multipart body: " + err.Error()}
	}
	defer form.RemoveAll()

	files := form.File["file"]
	if len(files) == 0 {
		return nil, &intake.Error{Status: http.StatusBadRequest, Code: "missing_file",
			Message: "multipart field \"file\" is required"}
	}
	file, err := files[0].Open()
	if err != nil {
		return nil, &intake.Error{Status: http.StatusBadRequest, Code: "unreadable_file",
			Message: err.Error()}
	}
	defer file.Close()
	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, &intake.Error{Status: http.StatusBadRequest, Code: "unreadable_file",
			Message: err.Error()}
	}

	formValue := func(key string) string {
		if values := form.Value[key]; len(values) > 0 {
			return values[0]
		}
		return ""
	}
	return &intakePayload{
		filename:  files[0].Filename,
		fileBytes: fileBytes,
		options:   optionsFromGetter(formValue),
		clientID:  formValue("client_id"),
	}, nil
}

type jsonIntakeBody struct {
	FileURL  string         `json:"file_url"`
	FileB64  string         `json:"file_b64"`
	Filename string         `json:"filename"`
	ClientID string         `json:"client_id"`
	Options  map[string]any `json:"options"`
}

func (s *Server) readJSONIntake(r *http.Request, rawBody []byte) (*intakePayload, *intake.Error) {
	if len(bytes.TrimSpace(rawBody)) == 0 {
		return nil, &intake.Error{Status: http.StatusBadRequest, Code: "empty_body",
			Message: "request body is empty"}
	}
	var body jsonIntakeBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, &intake.Error{Status: http.StatusBadRequest, Code: "invalid_json",
			Message: "body is not valid JSON: " + err.Error()}
	}
	if body.FileURL != "" && body.FileB64 != "" {
		return nil, &intake.Error{Status: http.StatusBadRequest, Code: "conflicting_payload",
			Message: "send file_url or file_b64, not both"}
	}
	if body.FileURL == "" && body.FileB64 == "" {
		return nil, &intake.Error{Status: http.StatusBadRequest, Code: "missing_file_reference",
			Message: "JSON intakes must carry file_url or file_b64"}
	}

	var fileBytes []byte
	filename := body.Filename
	if body.FileB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(body.FileB64)
		if err != nil {
			return nil, &intake.Error{Status: http.StatusBadRequest, Code: "invalid_base64",
				Message: "file_b64 is not valid base64: " + err.Error()}
		}
		fileBytes = decoded
		if filename == "" {
			filename = "payload.bin"
		}
	} else {
		downloaded, fetchErr := s.fetchFileURL(r, body.FileURL)
		if fetchErr != nil {
			return nil, fetchErr
		}
		fileBytes = downloaded
		if filename == "" {
			filename = filenameFromURL(body.FileURL)
		}
	}

	// request.json keeps the delivery context but never the payload bytes
	metadata := map[string]any{
		"filename": filename,
		"options":  body.Options,
	}
	if body.FileURL != "" {
		metadata["file_url"] = body.FileURL
	}

	return &intakePayload{
		filename:  filename,
		fileBytes: fileBytes,
		metadata:  metadata,
		options:   optionsFromJSON(body.Options),
		clientID:  body.ClientID,
	}, nil
}

func (s *Server) fetchFileURL(r *http.Request, fileURL string) ([]byte, *intake.Error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, &intake.Error{Status: http.StatusBadRequest, Code: "invalid_file_url",
			Message: "file_url is not a valid URL: " + err.Error()}
	}
	resp, err := s.fetcher.Do(req)
	if err != nil {
		return nil, &intake.Error{Status: http.StatusBadGateway, Code: "fetch_failed",
			Message: "could not download file_url: " + err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &intake.Error{Status: http.StatusBadGateway, Code: "fetch_failed",
			Message: "file_url returned status " + resp.Status}
	}

	limit := int64(s.cfg.Parse.MaxSizeBytes())
	fileBytes, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &intake.Error{Status: http.StatusBadGateway, Code: "fetch_failed",
			Message: "could not read file_url body: " + err.Error()}
	}
	if int64(len(fileBytes)) > limit {
		return nil, &intake.Error{Status: http.StatusRequestEntityTooLarge, Code: "payload_too_large",
			Message: "file_url body exceeds the upload limit"}
	}
	return fileBytes, nil
}

func filenameFromURL(fileURL string) string {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return "payload.bin"
	}
	base := path.Base(parsed.Path)
	if base == "" || base == "." || base == "/" {
		return "payload.bin"
	}
	return base
}
