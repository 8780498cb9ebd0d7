package projectx

import (
	"sync"
	"time"

	"github.com/topsignal/trader-go/pkg/timeutil"
)

// tokenSafetyWindow is subtracted from the token expiry so a token is never
// used in the final minute of its life.
const tokenSafetyWindow = 60 * time.Second

// defaultTokenLifetime is assumed when the auth response carries no usable
// expiry.
const defaultTokenLifetime = 20 * time.Minute

// TokenCache holds one session token shared by every client built for the
// same credentials. Callers only pay the login round-trip when the cached
// token is missing or inside the safety window.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// sharedTokens is the process-wide default cache.
var sharedTokens = &TokenCache{}

// NewTokenCache creates an isolated cache, mainly for tests.
func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// Get returns the cached token if it is still comfortably valid.
func (tc *TokenCache) Get(now time.Time) (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.token == "" || !tc.expiresAt.Add(-tokenSafetyWindow).After(now) {
		return "", false
	}
	return tc.token, true
}

// Set stores a freshly issued token.
func (tc *TokenCache) Set(token string, expiresAt time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.token = token
	tc.expiresAt = expiresAt
}

// Clear drops the cached token, forcing a re-login on next use.
func (tc *TokenCache) Clear() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.token = ""
	tc.expiresAt = time.Time{}
}

// parseTokenExpiry interprets whatever expiry field the auth response has:
// absolute ISO timestamp, epoch seconds or milliseconds, or a relative
// seconds count. Anything unusable falls back to the default lifetime.
func parseTokenExpiry(payload map[string]interface{}, now time.Time) time.Time {
	raw := firstValue(payload, []string{
		"expiration", "expiresAt", "expires", "expiry", "expiresIn", "expiresInSeconds",
	})
	if raw == nil {
		return now.Add(defaultTokenLifetime)
	}

	if numeric, ok := asFloat(raw); ok {
		switch {
		case numeric > 1e12: // epoch milliseconds
			return time.UnixMilli(int64(numeric)).UTC()
		case numeric > 1e9: // epoch seconds
			return time.Unix(int64(numeric), 0).UTC()
		default: // relative seconds
			if numeric < 0 {
				numeric = 0
			}
			return now.Add(time.Duration(int64(numeric)) * time.Second)
		}
	}

	if parsed, ok := timeutil.ParseTimestamp(raw); ok {
		return parsed
	}
	return now.Add(defaultTokenLifetime)
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
