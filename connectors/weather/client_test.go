package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T, temp float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		fmt.Fprintf(w, `{"main":{"temp":%f}}`, temp)
	}))
}

func TestTrafficStatusAboveZero(t *testing.T) {
	srv := newProvider(t, 12.5)
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "secret", City: "Madrid"}, nil)
	status, err := c.TrafficStatus(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
}

func TestTrafficStatusFreezing(t *testing.T) {
	srv := newProvider(t, -3.2)
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "secret"}, nil)
	status, err := c.TrafficStatus(context.Background(), "Burgos")
	require.NoError(t, err)
	assert.Equal(t, StatusKO, status)
}

func TestTrafficStatusZeroIsPassable(t *testing.T) {
	srv := newProvider(t, 0)
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "secret"}, nil)
	status, err := c.TrafficStatus(context.Background(), "Soria")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
}

func TestTrafficStatusProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "bad"}, nil)
	_, err := c.TrafficStatus(context.Background(), "Madrid")
	assert.Error(t, err)
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.NotEmpty(t, cfg.Endpoint)
	assert.Equal(t, "Madrid", cfg.City)
	assert.Error(t, cfg.Validate())

	cfg.APIKey = "k"
	assert.NoError(t, cfg.Validate())
}
