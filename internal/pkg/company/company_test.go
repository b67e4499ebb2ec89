package company

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/203.0.113.10":
			w.Write([]byte(`{"ip":"203.0.113.10","company":{"name":"Acme Corp","domain":"acme.io","type":"business"}}`))
		case "/203.0.113.11":
			w.Write([]byte(`{"ip":"203.0.113.11","company":{"name":"Comcast","domain":"comcast.net","type":"isp"}}`))
		case "/203.0.113.12":
			w.Write([]byte(`{"ip":"203.0.113.12"}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	resolver, err := NewResolver(Config{BaseURL: srv.URL + "/", Token: "secret", Timeout: time.Second})
	require.NoError(t, err)

	t.Run("business ip", func(t *testing.T) {
		c, err := resolver.Resolve(context.Background(), "203.0.113.10")
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, "Acme Corp", c.Name)
		assert.Equal(t, "acme.io", c.Domain)
		assert.Equal(t, "business", c.Industry)
	})

	t.Run("isp ranges are ignored", func(t *testing.T) {
		c, err := resolver.Resolve(context.Background(), "203.0.113.11")
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("no company on record", func(t *testing.T) {
		c, err := resolver.Resolve(context.Background(), "203.0.113.12")
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("upstream error", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), "198.51.100.1")
		assert.Error(t, err)
	})
}

func TestNewResolverRequiresURL(t *testing.T) {
	_, err := NewResolver(Config{})
	assert.Error(t, err)
}
