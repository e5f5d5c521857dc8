package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

var (
	errServerError  = errors.New("device server error")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
	errNoDeviceURL  = errors.New("device url not configured")
)

// DeviceConfig configures a DeviceSource.
type DeviceConfig struct {
	URL      string
	Identity Identity
	Client   *http.Client
}

// DeviceSource polls a real sensor exposing its current reading as JSON over HTTP.
// Reads go through a circuit breaker so a dead device fails fast; every failure
// is reported as the fallback reading.
type DeviceSource struct {
	url      string
	identity Identity
	client   *http.Client
	circuit  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewDeviceSource creates a new DeviceSource.
func NewDeviceSource(cfg DeviceConfig, logger *slog.Logger) *DeviceSource {
	if cfg.Identity == (Identity{}) {
		cfg.Identity = DefaultIdentity
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "source", "mode", "device")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "device:" + cfg.Identity.SensorID,
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("device circuit changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &DeviceSource{
		url:      cfg.URL,
		identity: cfg.Identity,
		client:   cfg.Client,
		circuit:  cb,
		logger:   logger,
	}
}

// devicePayload is the JSON document served by the device.
type devicePayload struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity,omitempty"`
	SensorID    string   `json:"sensorId,omitempty"`
	Location    string   `json:"location,omitempty"`
}

// Produce reads the device once.
func (d *DeviceSource) Produce(ctx context.Context) RawReading {
	reading, err := d.fetch(ctx)
	if err != nil {
		d.logger.Warn("reading device failed; using fallback", "url", d.url, "error", err)
		return Fallback(d.identity)
	}
	return reading
}

func (d *DeviceSource) fetch(ctx context.Context) (RawReading, error) {
	if d.url == "" {
		return RawReading{}, errNoDeviceURL
	}
	if d.client == nil {
		return RawReading{}, errNoHTTPClient
	}

	result, err := d.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}

		var payload devicePayload
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decoding device payload: %w", err)
		}
		return payload, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return RawReading{}, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return RawReading{}, err
	}

	payload, ok := result.(devicePayload)
	if !ok {
		return RawReading{}, fmt.Errorf("unexpected result type from circuit breaker")
	}
	if payload.Temperature == nil {
		return RawReading{}, fmt.Errorf("device payload has no temperature")
	}

	reading := RawReading{
		Temperature: *payload.Temperature,
		Humidity:    payload.Humidity,
		SensorID:    d.identity.SensorID,
		Location:    d.identity.Location,
	}
	if payload.SensorID != "" {
		reading.SensorID = payload.SensorID
	}
	if payload.Location != "" {
		reading.Location = payload.Location
	}
	return reading, nil
}

var _ Source = (*DeviceSource)(nil)
