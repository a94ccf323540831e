package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractClientIP_xForwardedFor(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		trustedHops int
		expected    string
	}{
		{
			name:        "single IP",
			header:      "192.168.1.1",
			trustedHops: 1,
			expected:    "192.168.1.1",
		},
		{
			name:        "one trusted proxy takes the rightmost entry",
			header:      "203.0.113.1, 198.51.100.1",
			trustedHops: 1,
			expected:    "198.51.100.1",
		},
		{
			name:        "two trusted proxies",
			header:      "203.0.113.1,198.51.100.1,10.0.0.2",
			trustedHops: 2,
			expected:    "198.51.100.1",
		},
		{
			name:        "more hops than entries",
			header:      "203.0.113.1  ,  198.51.100.1",
			trustedHops: 5,
			expected:    "203.0.113.1",
		},
		{
			name:        "no trusted proxies ignores header",
			header:      "203.0.113.1",
			trustedHops: 0,
			expected:    "192.0.2.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("X-Forwarded-For", tt.header)

			ip := ExtractClientIP(r, tt.trustedHops)
			require.Equal(t, tt.expected, ip)
		})
	}
}

func TestExtractClientIP_xRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Real-IP", "192.168.1.100")

	require.Equal(t, "192.168.1.100", ExtractClientIP(r, 1))
	require.Equal(t, "192.0.2.1", ExtractClientIP(r, 0))
}

func TestExtractClientIP_xForwardedForTakesPreference(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.1")
	r.Header.Set("X-Real-IP", "192.168.1.100")

	require.Equal(t, "203.0.113.1", ExtractClientIP(r, 1))
}

func TestExtractClientIP_remoteAddr(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		expected   string
	}{
		{
			name:       "IPv4 with port",
			remoteAddr: "192.168.1.1:54321",
			expected:   "192.168.1.1",
		},
		{
			name:       "IPv6 with port",
			remoteAddr: "[2001:db8::1]:54321",
			expected:   "2001:db8::1",
		},
		{
			name:       "no port",
			remoteAddr: "192.168.1.1",
			expected:   "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr

			require.Equal(t, tt.expected, ExtractClientIP(r, 1))
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	var buf bytes.Buffer

	var capturedIP string
	handler := ClientIPMiddleware(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedIP = ClientIPFromContext(r.Context())
		hlog.FromRequest(r).Info().Msg("handled")
		w.WriteHeader(http.StatusOK)
	}))
	handler = hlog.NewHandler(zerolog.New(&buf))(handler)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.1")

	handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "203.0.113.1", capturedIP)
	assert.Contains(t, buf.String(), `"ip":"203.0.113.1"`)
}

func TestClientIPFromContext_missing(t *testing.T) {
	ip := ClientIPFromContext(context.Background())
	require.Empty(t, ip)
}
