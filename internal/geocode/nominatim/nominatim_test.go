package nominatim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominatimReverse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "38.720000", r.URL.Query().Get("lat"))
		assert.Equal(t, "-9.140000", r.URL.Query().Get("lon"))
		assert.Equal(t, "lifemap-test", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"name":         "Baixa",
			"display_name": "Baixa, Lisboa, Portugal",
		}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	name, err := NewClient(server.URL, "lifemap-test").Reverse(context.Background(), 38.72, -9.14)
	require.NoError(t, err)
	assert.Equal(t, "Baixa", name)
}

func TestNominatimReverseUsesDisplayName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"display_name": "Atlantic Ocean"}`))
	}))
	defer server.Close()

	name, err := NewClient(server.URL, "").Reverse(context.Background(), 30, -40)
	require.NoError(t, err)
	assert.Equal(t, "Atlantic Ocean", name)
}

func TestNominatimReverseErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "Unable to geocode"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").Reverse(context.Background(), 0, 0)
	assert.ErrorContains(t, err, "Unable to geocode")
}

func TestNominatimReverseBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").Reverse(context.Background(), 0, 0)
	assert.Error(t, err)
}

func TestNominatimReverseNetworkError(t *testing.T) {
	_, err := NewClient("http://localhost:99999", "").Reverse(context.Background(), 0, 0)
	assert.Error(t, err)
}
