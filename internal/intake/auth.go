package intake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// Signature headers carried by HMAC-signed intakes. The signature
	// covers the raw request body with the client's shared secret; the
	// timestamp header is checked separately against the clock skew.
	HeaderSignature = "X-UTE-Signature"
	HeaderTimestamp = "X-UTE-Timestamp"
)

// AuthConfig holds the credentials accepted on the intake surface.
// APIKeys maps key names to bearer token values; HMACSecrets maps
// client ids to shared secrets, with "default" as the fallback.
type AuthConfig struct {
	RequireAuth bool
	APIKeys     map[string]string
	HMACSecrets map[string]string
	AllowedIPs  []string
	ClockSkew   time.Duration
}

type Authenticator struct {
	cfg AuthConfig
	now func() time.Time
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 5 * time.Minute
	}
	return &Authenticator{cfg: cfg, now: time.Now}
}

// Verify authenticates one intake request. The IP allowlist applies
// even when auth is otherwise disabled. A present-but-broken HMAC
// signature is rejected regardless of any valid bearer token, so a
// caller who signs cannot silently degrade to weaker auth.
func (a *Authenticator) Verify(r *http.Request, body []byte, clientID string) *Error {
	if err := a.checkIP(r); err != nil {
		return err
	}
	if !a.cfg.RequireAuth {
		return nil
	}

	bearerOK := a.checkBearer(r)

	signature := r.Header.Get(HeaderSignature)
	timestamp := r.Header.Get(HeaderTimestamp)
	if signature != "" || timestamp != "" {
		if err := a.checkHMAC(signature, timestamp, body, clientID); err != nil {
			return err
		}
		return nil
	}

	if bearerOK {
		return nil
	}
	return unauthorized("authentication_required",
		"provide a bearer token or an HMAC signature",
		"set Authorization: Bearer <key>, or "+HeaderSignature+" and "+HeaderTimestamp)
}

func (a *Authenticator) checkIP(r *http.Request) *Error {
	if len(a.cfg.AllowedIPs) == 0 {
		return nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	for _, allowed := range a.cfg.AllowedIPs {
		if host == allowed {
			return nil
		}
	}
	return forbidden("ip_not_allowed", "source address is not on the allowlist", "")
}

func (a *Authenticator) checkBearer(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}
	for _, key := range a.cfg.APIKeys {
		if key != "" && key == token {
			return true
		}
	}
	return false
}

func (a *Authenticator) checkHMAC(signature, timestamp string, body []byte, clientID string) *Error {
	provided, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || provided == "" {
		return unauthorized("invalid_signature_format",
			"signature must look like sha256=<hex>", "")
	}
	epoch, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return unauthorized("invalid_timestamp",
			"timestamp must be a unix epoch in seconds", "")
	}
	drift := a.now().Unix() - epoch
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(a.cfg.ClockSkew.Seconds()) {
		return unauthorized("timestamp_out_of_range",
			"signed timestamp is outside the accepted clock skew", "")
	}

	secret := a.cfg.HMACSecrets[clientOrDefault(clientID)]
	if secret == "" {
		secret = a.cfg.HMACSecrets["default"]
	}
	if secret == "" {
		return unauthorized("missing_hmac_secret",
			"no shared secret configured for this client", "")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
		return unauthorized("signature_mismatch", "signature does not match the request body", "")
	}
	return nil
}
