package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ignite/table-engine/internal/adapters"
	"github.com/ignite/table-engine/internal/config"
	"github.com/ignite/table-engine/internal/engine"
	"github.com/ignite/table-engine/internal/intake"
	"github.com/ignite/table-engine/internal/presets"
)

var sampleCSV = []byte("Invoice;Date;Amount\nAB;12.01.2024;1234,56\nCD;13.01.2024;2000,00\n")

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Webhook.Enabled = true
	cfg.Webhook.RequireAuth = false
	cfg.Webhook.OutputDir = t.TempDir()
	cfg.Adapters.JSON.OutputDir = t.TempDir()
	cfg.Parse.RulesDir = t.TempDir()
	cfg.Parse.DefaultAdapter = "none"
	cfg.Presets.Dir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	eng := engine.New(engine.Config{
		RulesDir:        cfg.Parse.RulesDir,
		SampleLimit:     cfg.Parse.SampleLimit,
		HeaderSearchMax: cfg.Parse.HeaderSearchMax,
		MaxSizeBytes:    cfg.Parse.MaxSizeBytes(),
		DefaultAdapter:  cfg.Parse.DefaultAdapter,
		MaskPII:         cfg.Parse.MaskPII,
		DefaultDayFirst: cfg.Parse.DefaultDayfirst,
	}, nil, &adapters.Registry{
		JSON: &adapters.JSONAdapter{
			OutputDir: cfg.Adapters.JSON.OutputDir,
			Exports:   cfg.Adapters.JSON.Exports,
		},
	})

	store := intake.NewStore(cfg.Webhook.OutputDir)
	orch := intake.NewOrchestrator(store, eng, intake.NewPool(cfg.Webhook.Workers))
	auth := intake.NewAuthenticator(intake.AuthConfig{
		RequireAuth: cfg.Webhook.RequireAuth,
		APIKeys:     cfg.Webhook.APIKeys,
		HMACSecrets: cfg.Webhook.HMACSecrets,
		AllowedIPs:  cfg.Webhook.AllowedIPs,
		ClockSkew:   cfg.Webhook.ClockSkew(),
	})
	return NewServer(cfg, eng, orch, store, &presets.Store{Dir: cfg.Presets.Dir}, auth, nil)
}

func multipartBody(t *testing.T, filename string, fileBytes []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(fileBytes)
	require.NoError(t, err)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}
