package http_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/karloscodes/cartridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lphttp "leadpulse/internal/http"
	"leadpulse/internal/testsupport"
)

func TestHealthIndexAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	failing := func(critical bool, name string) lphttp.HealthCheck {
		return lphttp.HealthCheck{
			Name:     name,
			Critical: critical,
			Probe:    func(ctx *cartridge.Context) error { return errors.New("down") },
		}
	}

	tests := []struct {
		name       string
		checks     []lphttp.HealthCheck
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "database healthy, geo database missing",
			checks:     []lphttp.HealthCheck{lphttp.DatabaseCheck(), lphttp.GeoIPCheck()},
			wantStatus: "ok",
			wantChecks: map[string]string{"database": "ok", "geoip": "unavailable"},
		},
		{
			name:       "optional dependency down",
			checks:     []lphttp.HealthCheck{lphttp.DatabaseCheck(), failing(false, "redis")},
			wantStatus: "ok",
			wantChecks: map[string]string{"database": "ok", "redis": "unavailable"},
		},
		{
			name:       "critical dependency down",
			checks:     []lphttp.HealthCheck{failing(true, "database")},
			wantStatus: "degraded",
			wantChecks: map[string]string{"database": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			health := lphttp.NewHealthHandler(tt.checks...)
			app := testsupport.CreateHandlerTestApp(t, db, "/_health", health.HealthIndexAction)

			resp, err := app.Test(httptest.NewRequest("GET", "/_health", nil))
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			var status lphttp.HealthStatus
			require.NoError(t, json.Unmarshal(body, &status))
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, tt.wantChecks, status.Checks)
		})
	}
}
