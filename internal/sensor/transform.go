package sensor

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

var (
	// ErrOutOfRange is returned for readings outside the acceptance bounds.
	ErrOutOfRange = errors.New("temperature outside acceptance bounds")
	// ErrMalformedReading is returned for readings that cannot be normalized at all.
	ErrMalformedReading = errors.New("malformed sensor reading")
)

// Bounds is an inclusive temperature range.
type Bounds struct {
	Min float64
	Max float64
}

// DefaultAcceptance is the range a reading must fall into to be stored.
var DefaultAcceptance = Bounds{Min: -50, Max: 100}

// Contains reports whether v lies within [Min, Max].
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// ValidationRecorder receives the outcome of every validation attempt.
type ValidationRecorder interface {
	RecordValid()
	RecordInvalid()
}

// Transformer validates raw readings and turns accepted ones into Records.
type Transformer struct {
	bounds   Bounds
	recorder ValidationRecorder
	now      func() time.Time
	logger   *slog.Logger
}

// NewTransformer creates a Transformer reporting outcomes to recorder.
func NewTransformer(bounds Bounds, recorder ValidationRecorder, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{
		bounds:   bounds,
		recorder: recorder,
		now:      time.Now,
		logger:   logger.With("component", "transformer"),
	}
}

// WithClock replaces the clock used to stamp records.
func (t *Transformer) WithClock(now func() time.Time) *Transformer {
	if now != nil {
		t.now = now
	}
	return t
}

// Bounds returns the acceptance range in use.
func (t *Transformer) Bounds() Bounds {
	return t.bounds
}

// Validate checks raw against the acceptance policy without touching any counters.
func (t *Transformer) Validate(raw RawReading) error {
	if math.IsNaN(raw.Temperature) || math.IsInf(raw.Temperature, 0) {
		return fmt.Errorf("%w: temperature %v is not a finite number", ErrMalformedReading, raw.Temperature)
	}
	if strings.TrimSpace(raw.SensorID) == "" {
		return fmt.Errorf("%w: empty sensor id", ErrMalformedReading)
	}
	if !t.bounds.Contains(raw.Temperature) {
		return fmt.Errorf("%w: %.2f not in [%v, %v]", ErrOutOfRange, raw.Temperature, t.bounds.Min, t.bounds.Max)
	}
	return nil
}

// Transform validates raw and, on acceptance, returns the normalized record.
// Every call counts as exactly one valid or one invalid attempt. Failures are
// logged here and never returned.
func (t *Transformer) Transform(raw RawReading) (rec Record, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("transforming reading panicked", "panic", r)
			t.invalid()
			rec, ok = Record{}, false
		}
	}()

	if err := t.Validate(raw); err != nil {
		if errors.Is(err, ErrOutOfRange) {
			t.logger.Warn("invalid temperature reading", "temperature", raw.Temperature, "sensor_id", raw.SensorID)
		} else {
			t.logger.Error("error transforming reading", "error", err)
		}
		t.invalid()
		return Record{}, false
	}

	rec = Record{
		Temperature: Round2(raw.Temperature),
		Timestamp:   t.now().UnixMilli(),
		SensorID:    raw.SensorID,
		Location:    raw.Location,
		Processed:   true,
	}
	if t.recorder != nil {
		t.recorder.RecordValid()
	}
	return rec, true
}

func (t *Transformer) invalid() {
	if t.recorder != nil {
		t.recorder.RecordInvalid()
	}
}
