package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		status int
	}{
		{"valid", "secret", "Bearer secret", http.StatusOK},
		{"wrong token", "secret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"wrong scheme", "secret", "Basic secret", http.StatusUnauthorized},
		{"disabled", "", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			AdminAuth(tt.token)(okHandler).ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRateLimiter_Window(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	now := time.Now()
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _ := rl.Allow(ctx, "a")
	assert.False(t, allowed)

	allowed, _ = rl.Allow(ctx, "b")
	assert.True(t, allowed, "keys are independent")

	now = now.Add(time.Minute)
	allowed, _ = rl.Allow(ctx, "a")
	assert.True(t, allowed, "new window")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second})
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow(context.Background(), "a")
	now = now.Add(2 * time.Second)
	rl.Cleanup()
	assert.Empty(t, rl.windows)
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, "test")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "subject:1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := rl.Allow(ctx, "subject:1")
	require.NoError(t, err)
	assert.False(t, allowed)

	assert.Equal(t, time.Minute, mr.TTL("test:subject:1"))

	mr.FastForward(time.Minute)
	allowed, err = rl.Allow(ctx, "subject:1")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, rl.Reset(ctx, "subject:1"))
	assert.False(t, mr.Exists("test:subject:1"))
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	allowed, err := NewDistributedRateLimiter(client, nil, "").Allow(context.Background(), "k")
	assert.Error(t, err)
	assert.True(t, allowed)
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return false, errors.New("redis down")
}

func (failingLimiter) Config() *RateLimitConfig {
	return DefaultRateLimitConfig()
}

func TestRateLimit_Middleware(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	router := mux.NewRouter()
	router.Handle("/subjects/{id}/refresh-info", RateLimit(limiter, SubjectKey, nil)(okHandler))

	do := func(id string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/subjects/"+id+"/refresh-info", nil))
		return w
	}

	assert.Equal(t, http.StatusOK, do("1").Code)
	w := do("1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do("2").Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	logger, hook := test.NewNullLogger()
	w := httptest.NewRecorder()
	RateLimit(failingLimiter{}, SubjectKey, logger)(okHandler).
		ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Rate limiter unavailable, allowing request", hook.LastEntry().Message)
}
