package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// HeaderAPIKey identifies the administrative client.
	HeaderAPIKey = "X-Api-Key"
	// HeaderTimestamp carries the unix timestamp (seconds) used when signing.
	HeaderTimestamp = "X-Timestamp"
	// HeaderNonce provides replay protection combined with the timestamp.
	HeaderNonce = "X-Nonce"
	// HeaderSignature carries the hex HMAC-SHA256 signature of the request.
	HeaderSignature = "X-Signature"

	maxSignedBody    int64 = 1 << 20
	defaultAuthSkew        = 2 * time.Minute
	maxTrackedNonces       = 4096
)

// AdminAuth verifies API key + HMAC signatures on privileged requests. A nil
// or empty-keyed authenticator rejects everything, so the admin surface
// fails closed when no credentials are configured.
type AdminAuth struct {
	secrets map[string]string
	skew    time.Duration
	nowFn   func() time.Time

	nonceMu sync.Mutex
	nonces  map[string]time.Time
}

func NewAdminAuth(secrets map[string]string, skew time.Duration) *AdminAuth {
	cloned := make(map[string]string, len(secrets))
	for key, secret := range secrets {
		key = strings.TrimSpace(key)
		secret = strings.TrimSpace(secret)
		if key == "" || secret == "" {
			continue
		}
		cloned[key] = secret
	}
	if skew <= 0 {
		skew = defaultAuthSkew
	}
	return &AdminAuth{
		secrets: cloned,
		skew:    skew,
		nowFn:   time.Now,
		nonces:  make(map[string]time.Time),
	}
}

// Enabled reports whether any credential is configured.
func (a *AdminAuth) Enabled() bool {
	return a != nil && len(a.secrets) > 0
}

// Middleware authenticates every request before it reaches the handler.
func (a *AdminAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				http.Error(w, "admin interface disabled", http.StatusForbidden)
				return
			}
			var body []byte
			if r.Body != nil {
				data, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
				r.Body.Close()
				if err != nil || int64(len(data)) > maxSignedBody {
					http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
					return
				}
				body = data
			}
			if err := a.authenticate(r, body); err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func (a *AdminAuth) authenticate(r *http.Request, body []byte) error {
	apiKey := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	if apiKey == "" {
		return errors.New("missing " + HeaderAPIKey + " header")
	}
	secret, ok := a.secrets[apiKey]
	if !ok {
		return errors.New("unknown API key")
	}
	timestamp := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	if timestamp == "" {
		return errors.New("missing " + HeaderTimestamp + " header")
	}
	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	now := a.nowFn().UTC()
	drift := now.Sub(time.Unix(secs, 0).UTC())
	if drift < 0 {
		drift = -drift
	}
	if drift > a.skew {
		return fmt.Errorf("timestamp outside allowed skew of %s", a.skew)
	}
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	if nonce == "" {
		return errors.New("missing " + HeaderNonce + " header")
	}
	provided := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if provided == "" {
		return errors.New("missing " + HeaderSignature + " header")
	}
	providedBytes, err := hex.DecodeString(provided)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	expected := AdminSignature(secret, timestamp, nonce, r.Method, r.URL.Path, body)
	if !hmac.Equal(providedBytes, expected) {
		return errors.New("invalid signature")
	}
	if a.nonceUsed(apiKey+"|"+timestamp+"|"+nonce, now) {
		return errors.New("nonce already used")
	}
	return nil
}

func (a *AdminAuth) nonceUsed(composite string, now time.Time) bool {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	cutoff := now.Add(-a.skew)
	var oldestKey string
	var oldest time.Time
	for key, seen := range a.nonces {
		if seen.Before(cutoff) {
			delete(a.nonces, key)
			continue
		}
		if oldestKey == "" || seen.Before(oldest) {
			oldestKey, oldest = key, seen
		}
	}
	if _, used := a.nonces[composite]; used {
		return true
	}
	if len(a.nonces) >= maxTrackedNonces && oldestKey != "" {
		delete(a.nonces, oldestKey)
	}
	a.nonces[composite] = now
	return false
}

// AdminSignature builds the HMAC-SHA256 signature bytes clients must present.
func AdminSignature(secret, timestamp, nonce, method, path string, body []byte) []byte {
	payload := strings.Join([]string{timestamp, nonce, strings.ToUpper(method), path, string(body)}, "\n")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
