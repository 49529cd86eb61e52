package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/ports"
)

func TestFetcher_Fetch_SuccessDetectsJSONFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"openapi":"3.0.3"}`))
	}))
	defer srv.Close()

	f := New(nil)
	body, format, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, ports.SpecFormatJSON, format)
	assert.Contains(t, string(body), "openapi")
}

func TestFetcher_Fetch_NonSuccessStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(nil)
	_, _, err := f.Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}
