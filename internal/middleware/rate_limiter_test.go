package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowUnderLimit(t *testing.T) {
	rl := NewRateLimiter(map[string]BucketConfig{
		"action": {MaxPerMinute: 10, Burst: 15},
	})
	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow("action", "s1:tok"), "request %d", i)
	}
}

func TestDenyOverBurst(t *testing.T) {
	rl := NewRateLimiter(map[string]BucketConfig{
		"action": {MaxPerMinute: 5, Burst: 8},
	})
	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.Allow("action", "s1:tok") {
			allowed++
		}
	}
	assert.LessOrEqual(t, allowed, 8)
	assert.False(t, rl.Allow("action", "s1:tok"))
}

func TestKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(map[string]BucketConfig{
		"action": {MaxPerMinute: 3, Burst: 3},
	})
	for i := 0; i < 10; i++ {
		rl.Allow("action", "s1:alpha")
	}
	assert.True(t, rl.Allow("action", "s1:beta"), "other keys keep their own window")
	assert.True(t, rl.Allow("action", "s2:alpha"), "same token in another session is a distinct key")
}

func TestBucketsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(map[string]BucketConfig{
		"action": {MaxPerMinute: 2, Burst: 2},
		"owner":  {MaxPerMinute: 100, Burst: 100},
	})
	for i := 0; i < 10; i++ {
		rl.Allow("action", "k")
	}
	assert.False(t, rl.Allow("action", "k"))
	assert.True(t, rl.Allow("owner", "k"))
}

func TestUnknownBucketAlwaysAllows(t *testing.T) {
	rl := NewRateLimiter(nil)
	for i := 0; i < 1000; i++ {
		require.True(t, rl.Allow("nope", "k"))
	}
}

func TestCheckWrites429(t *testing.T) {
	rl := NewRateLimiter(map[string]BucketConfig{
		"action": {MaxPerMinute: 1, Burst: 1},
	})
	require.True(t, rl.Allow("action", "k"))

	rec := httptest.NewRecorder()
	ok := rl.Check(rec, "action", "k")
	assert.False(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestClientAddr(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:41234"
	assert.Equal(t, "10.0.0.7", ClientAddr(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", ClientAddr(r))
}
