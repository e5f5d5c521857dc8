package sensor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceSourceReadsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temperature": 23.456, "humidity": 41.5, "location": "Server Room"}`))
	}))
	defer srv.Close()

	src := NewDeviceSource(DeviceConfig{
		URL:      srv.URL,
		Identity: Identity{SensorID: "TEMP_042", Location: "Unknown"},
		Client:   &http.Client{Timeout: time.Second},
	}, nil)

	r := src.Produce(context.Background())
	assert.Equal(t, 23.456, r.Temperature)
	require.NotNil(t, r.Humidity)
	assert.Equal(t, 41.5, *r.Humidity)
	assert.Equal(t, "TEMP_042", r.SensorID)
	assert.Equal(t, "Server Room", r.Location)
}

func TestDeviceSourceFallsBackOnFailure(t *testing.T) {
	id := Identity{SensorID: "TEMP_042", Location: "Lab"}

	handlers := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"not found": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"temperature":`))
		},
		"no temperature": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"humidity": 50}`))
		},
	}

	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			src := NewDeviceSource(DeviceConfig{URL: srv.URL, Identity: id, Client: srv.Client()}, nil)
			assert.Equal(t, Fallback(id), src.Produce(context.Background()))
		})
	}
}

func TestDeviceSourceWithoutURLUsesFallback(t *testing.T) {
	src := NewDeviceSource(DeviceConfig{Client: http.DefaultClient}, nil)
	assert.Equal(t, Fallback(DefaultIdentity), src.Produce(context.Background()))
}

func TestDeviceSourceCircuitOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewDeviceSource(DeviceConfig{URL: srv.URL, Client: srv.Client()}, nil)

	// gobreaker's default policy trips after more than 5 consecutive failures.
	for i := 0; i < 10; i++ {
		assert.Equal(t, Fallback(DefaultIdentity), src.Produce(context.Background()))
	}
	assert.Equal(t, int32(6), hits.Load())
}
