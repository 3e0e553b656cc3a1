package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestAuthDisabledAllowsAnonymous(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{RequireAuth: false})
	req := httptest.NewRequest("POST", "/webhook/v1/intake", nil)
	assert.Nil(t, auth.Verify(req, nil, "acme"))
}

func TestAuthBearerToken(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		RequireAuth: true,
		APIKeys:     map[string]string{"partner": "tok-123"},
	})

	req := httptest.NewRequest("POST", "/webhook/v1/intake", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	assert.Nil(t, auth.Verify(req, nil, "acme"))

	req.Header.Set("Authorization", "Bearer wrong")
	err := auth.Verify(req, nil, "acme")
	require.NotNil(t, err)
	assert.Equal(t, "authentication_required", err.Code)

	req.Header.Del("Authorization")
	err = auth.Verify(req, nil, "acme")
	require.NotNil(t, err)
	assert.Equal(t, 401, err.Status)
}

func TestAuthHMACSignature(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		RequireAuth: true,
		HMACSecrets: map[string]string{"acme": "s3cret", "default": "fallback"},
	})
	body := []byte("Factura;Valoare\nINV-A;100\n")
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest("POST", "/webhook/v1/intake/acme", nil)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signBody("s3cret", body))
	assert.Nil(t, auth.Verify(req, body, "acme"))

	// Clients without their own secret fall back to "default".
	req.Header.Set(HeaderSignature, signBody("fallback", body))
	assert.Nil(t, auth.Verify(req, body, "globex"))

	req.Header.Set(HeaderSignature, signBody("wrong", body))
	err := auth.Verify(req, body, "acme")
	require.NotNil(t, err)
	assert.Equal(t, "signature_mismatch", err.Code)
}

func TestAuthHMACRejectsBadHeaders(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		RequireAuth: true,
		APIKeys:     map[string]string{"partner": "tok-123"},
		HMACSecrets: map[string]string{"default": "s3cret"},
		ClockSkew:   5 * time.Minute,
	})
	body := []byte("payload")

	req := httptest.NewRequest("POST", "/webhook/v1/intake", nil)
	req.Header.Set(HeaderSignature, "md5=abcdef")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	err := auth.Verify(req, body, "")
	require.NotNil(t, err)
	assert.Equal(t, "invalid_signature_format", err.Code)

	req.Header.Set(HeaderSignature, signBody("s3cret", body))
	req.Header.Set(HeaderTimestamp, "not-a-number")
	err = auth.Verify(req, body, "")
	require.NotNil(t, err)
	assert.Equal(t, "invalid_timestamp", err.Code)

	stale := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	req.Header.Set(HeaderTimestamp, stale)
	req.Header.Set(HeaderSignature, signBody("s3cret", body))
	err = auth.Verify(req, body, "")
	require.NotNil(t, err)
	assert.Equal(t, "timestamp_out_of_range", err.Code)

	// A valid bearer token does not rescue a broken signature.
	req.Header.Set("Authorization", "Bearer tok-123")
	err = auth.Verify(req, body, "")
	require.NotNil(t, err)
	assert.Equal(t, "timestamp_out_of_range", err.Code)
}

func TestAuthHMACSignsBodyOnly(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		RequireAuth: true,
		HMACSecrets: map[string]string{"acme": "s3cret"},
	})
	body := []byte("Factura;Valoare\nINV-A;100\n")
	signature := signBody("s3cret", body)

	// The same body signature verifies under any in-skew timestamp;
	// the timestamp is a freshness check, not part of the MAC input.
	for _, offset := range []time.Duration{0, -time.Minute, time.Minute} {
		timestamp := strconv.FormatInt(time.Now().Add(offset).Unix(), 10)
		req := httptest.NewRequest("POST", "/webhook/v1/intake/acme", nil)
		req.Header.Set(HeaderTimestamp, timestamp)
		req.Header.Set(HeaderSignature, signature)
		assert.Nil(t, auth.Verify(req, body, "acme"))
	}
}

func TestAuthMissingHMACSecret(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{RequireAuth: true, HMACSecrets: map[string]string{}})
	body := []byte("payload")
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest("POST", "/webhook/v1/intake", nil)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, signBody("whatever", body))
	err := auth.Verify(req, body, "acme")
	require.NotNil(t, err)
	assert.Equal(t, "missing_hmac_secret", err.Code)
}

func TestAuthIPAllowlist(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{AllowedIPs: []string{"10.0.0.5"}})

	req := httptest.NewRequest("POST", "/webhook/v1/intake", nil)
	req.RemoteAddr = "10.0.0.5:43210"
	assert.Nil(t, auth.Verify(req, nil, ""))

	req.RemoteAddr = "10.0.0.9:43210"
	err := auth.Verify(req, nil, "")
	require.NotNil(t, err)
	assert.Equal(t, 403, err.Status)
	assert.Equal(t, "ip_not_allowed", err.Code)
}
