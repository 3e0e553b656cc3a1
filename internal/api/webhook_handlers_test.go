package api

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/table-engine/internal/config"
	"github.com/ignite/table-engine/internal/intake"
	"github.com/ignite/table-engine/internal/pkg/httputil"
)

func postIntake(t *testing.T, s *Server, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, "invoices.csv", sampleCSV, nil)
	req := httptest.NewRequest("POST", target, body)
	req.Header.Set("Content-Type", contentType)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return doRequest(s, req)
}

func TestIntakeDisabled(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Webhook.Enabled = false })

	rec := postIntake(t, s, "/webhook/v1/intake", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp httputil.ErrorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "webhook_disabled", resp.ErrorCode)
}

func TestIntakeMultipartSync(t *testing.T) {
	s := newTestServer(t, nil)

	rec := postIntake(t, s, "/webhook/v1/intake/acme?sync=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var receipt intake.Receipt
	decodeBody(t, rec, &receipt)
	assert.Equal(t, "ok", receipt.Status)
	assert.Equal(t, "acme", receipt.ClientID)
	assert.True(t, receipt.Sync)
	assert.False(t, receipt.Duplicate)
	assert.NotEmpty(t, receipt.IntakeID)
	assert.True(t, strings.HasPrefix(receipt.IdempotencyKey, "acme:"), "derived from payload digest")
	require.NotNil(t, receipt.Parse)
	assert.Equal(t, "number", receipt.Parse.Schema.Types["amount"])
}

func TestIntakeDuplicateSuppressed(t *testing.T) {
	s := newTestServer(t, nil)

	first := postIntake(t, s, "/webhook/v1/intake/acme?sync=true", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := postIntake(t, s, "/webhook/v1/intake/acme?sync=true", nil)
	require.Equal(t, http.StatusOK, second.Code)

	var firstReceipt, secondReceipt intake.Receipt
	decodeBody(t, first, &firstReceipt)
	decodeBody(t, second, &secondReceipt)
	assert.True(t, secondReceipt.Duplicate)
	assert.Equal(t, firstReceipt.IntakeID, secondReceipt.IntakeID)
}

func TestIntakeAsyncQueued(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Webhook.AsyncDefault = true })

	rec := postIntake(t, s, "/webhook/v1/intake/acme", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var receipt intake.Receipt
	decodeBody(t, rec, &receipt)
	assert.Equal(t, "queued", receipt.Status)
	assert.True(t, receipt.Processing)
	assert.Contains(t, receipt.Notes, "queued")

	require.Eventually(t, func() bool {
		final := s.store.GetReceipt(receipt.IntakeID, "acme")
		return final != nil && final.Status != "queued"
	}, 5*time.Second, 20*time.Millisecond, "queued intake finishes in the background")

	final := s.store.GetReceipt(receipt.IntakeID, "acme")
	assert.Equal(t, "ok", final.Status)
	assert.False(t, final.Processing)
}

func TestIntakeJSONBase64(t *testing.T) {
	s := newTestServer(t, nil)

	body := `{"file_b64":"` + base64.StdEncoding.EncodeToString(sampleCSV) + `","filename":"invoices.csv","client_id":"acme","options":{"dayfirst":true,"sync":"true"}}`
	req := httptest.NewRequest("POST", "/webhook/v1/intake", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, "acme:delivery-1")

	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var receipt intake.Receipt
	decodeBody(t, rec, &receipt)
	assert.Equal(t, "ok", receipt.Status)
	assert.Equal(t, "acme", receipt.ClientID)
	assert.Equal(t, "acme:delivery-1", receipt.IdempotencyKey)
	assert.Equal(t, "invoices.csv", receipt.Filename)
	assert.NotEmpty(t, receipt.Artifacts["request"], "JSON intakes store request metadata")
}

func TestIntakeJSONPayloadErrors(t *testing.T) {
	s := newTestServer(t, nil)

	cases := []struct {
		name string
		body string
		key  string
		code string
	}{
		{"empty body", "", "k", "empty_body"},
		{"invalid json", "{nope", "k", "invalid_json"},
		{"no file reference", `{"filename":"x.csv"}`, "k", "missing_file_reference"},
		{"both references", `{"file_url":"https://example.com/x.csv","file_b64":"aGk="}`, "k", "conflicting_payload"},
		{"bad base64", `{"file_b64":"%%%"}`, "k", "invalid_base64"},
		{"missing idempotency key", `{"file_b64":"aGk="}`, "", "missing_idempotency_key"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/webhook/v1/intake", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.key != "" {
				req.Header.Set(HeaderIdempotencyKey, tc.key)
			}
			rec := doRequest(s, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp httputil.ErrorResponse
			decodeBody(t, rec, &resp)
			assert.Equal(t, tc.code, resp.ErrorCode)
		})
	}
}

func TestIntakeJSONFileURL(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(sampleCSV)
	}))
	defer upstream.Close()

	s := newTestServer(t, nil)

	body := `{"file_url":"` + upstream.URL + `/exports/invoices.csv","client_id":"acme","options":{"dayfirst":true}}`
	req := httptest.NewRequest("POST", "/webhook/v1/intake?sync=true", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, "acme:url-delivery")

	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var receipt intake.Receipt
	decodeBody(t, rec, &receipt)
	assert.Equal(t, "ok", receipt.Status)
	assert.Equal(t, "invoices.csv", receipt.Filename, "filename derived from the URL path")
}

func TestIntakeRequiresAuth(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Webhook.RequireAuth = true
		cfg.Webhook.APIKeys = map[string]string{"partner": "tok-123"}
	})

	rec := postIntake(t, s, "/webhook/v1/intake/acme?sync=true", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postIntake(t, s, "/webhook/v1/intake/acme?sync=true",
		map[string]string{"Authorization": "Bearer tok-123"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIntakeParseFailureBecomesFailedReceipt(t *testing.T) {
	s := newTestServer(t, nil)

	body, contentType := multipartBody(t, "garbage.bin", []byte{0x00, 0x01, 0xff}, nil)
	req := httptest.NewRequest("POST", "/webhook/v1/intake/acme?sync=true", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var receipt intake.Receipt
	decodeBody(t, rec, &receipt)
	assert.Equal(t, "failed", receipt.Status)
	require.NotEmpty(t, receipt.Notes)
	assert.True(t, strings.HasPrefix(receipt.Notes[0], "error:"))
}
