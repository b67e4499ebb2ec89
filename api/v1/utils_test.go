package v1

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetClientIP(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	app := fiber.New()
	app.Get("/ip", func(c *fiber.Ctx) error {
		return c.SendString(getClientIP(c, logger))
	})

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "first public x-forwarded-for entry",
			headers: map[string]string{"X-Forwarded-For": "10.0.0.3, 203.0.113.20, 198.51.100.1"},
			want:    "203.0.113.20",
		},
		{
			name: "x-forwarded-for beats proxy headers",
			headers: map[string]string{
				"X-Forwarded-For":  "198.51.100.7",
				"CF-Connecting-IP": "203.0.113.5",
			},
			want: "198.51.100.7",
		},
		{
			name: "proxy headers in order when forwarded-for is private",
			headers: map[string]string{
				"X-Forwarded-For":  "192.168.0.4",
				"CF-Connecting-IP": "203.0.113.5",
				"X-Client-IP":      "198.51.100.9",
			},
			want: "203.0.113.5",
		},
		{
			name:    "rfc 7239 forwarded header",
			headers: map[string]string{"Forwarded": `for="[2001:db8:cafe::17]:4711";proto=https`},
			want:    "2001:db8:cafe::17",
		},
		{
			name: "loopback fallback",
			want: "127.0.0.1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ip", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(body))
		})
	}
}

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"79.144.65.173:1234"`, "79.144.65.173"},
		{"[2001:db8::1]:8443", "2001:db8::1"},
		{"fe80::1%eth0", "fe80::1"},
		{"::ffff:203.0.113.9", "203.0.113.9"},
		{"not-an-ip", ""},
		{"   ", ""},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			addr, ok := normalizeIP(tc.raw)
			if tc.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, addr.String())
		})
	}
}

func TestSelectPreferredIP(t *testing.T) {
	assert.Equal(t, "203.0.113.20", selectPreferredIP([]string{"2001:db8::1", "203.0.113.20"}))
	assert.Equal(t, "2001:db8::2", selectPreferredIP([]string{"::1", "2001:db8::2"}))
	assert.Empty(t, selectPreferredIP([]string{"", "10.0.0.5", "0.0.0.0"}))
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, isPrivateIP(netip.MustParseAddr("::ffff:192.168.1.5")))
	assert.True(t, isPrivateIP(netip.MustParseAddr("fe80::1")))
	assert.False(t, isPrivateIP(netip.MustParseAddr("::ffff:8.8.8.8")))
}
