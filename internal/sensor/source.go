package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Source abstracts where raw readings come from (simulation, fixtures, a real device).
// Produce never fails: implementations substitute Fallback on internal errors.
type Source interface {
	Produce(ctx context.Context) RawReading
}

// SimulatedConfig configures the random temperature generator.
type SimulatedConfig struct {
	MinTemp    float64
	MaxTemp    float64
	Identity   Identity
	RandSource rand.Source
}

// SimulatedSource draws temperatures uniformly from [MinTemp, MaxTemp].
type SimulatedSource struct {
	cfg    SimulatedConfig
	logger *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulatedSource creates a SimulatedSource. A nil RandSource is seeded from the clock.
func NewSimulatedSource(cfg SimulatedConfig, logger *slog.Logger) *SimulatedSource {
	if cfg.Identity == (Identity{}) {
		cfg.Identity = DefaultIdentity
	}
	source := cfg.RandSource
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	cfg.RandSource = source

	if logger == nil {
		logger = slog.Default()
	}

	return &SimulatedSource{
		cfg:    cfg,
		logger: logger.With("component", "source", "mode", "simulated"),
		rnd:    rand.New(source),
	}
}

// Produce draws one reading.
func (s *SimulatedSource) Produce(_ context.Context) (reading RawReading) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("generating sensor reading panicked; using fallback", "panic", r)
			reading = Fallback(s.cfg.Identity)
		}
	}()

	temp, err := s.generate()
	if err != nil {
		s.logger.Error("generating sensor reading failed; using fallback", "error", err)
		return Fallback(s.cfg.Identity)
	}

	return RawReading{
		Temperature: temp,
		SensorID:    s.cfg.Identity.SensorID,
		Location:    s.cfg.Identity.Location,
	}
}

func (s *SimulatedSource) generate() (float64, error) {
	lo, hi := s.cfg.MinTemp, s.cfg.MaxTemp
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return 0, fmt.Errorf("simulation range [%v, %v] is not finite", lo, hi)
	}
	if lo > hi {
		return 0, fmt.Errorf("simulation range [%v, %v] is inverted", lo, hi)
	}

	return Round2(lo + s.nextFloat()*(hi-lo)), nil
}

func (s *SimulatedSource) nextFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

// FixtureSource replays a fixed sequence of readings, one per call.
// Once the sequence is exhausted it reports the fallback reading.
type FixtureSource struct {
	identity Identity

	mu       sync.Mutex
	readings []RawReading
	next     int
}

// NewFixtureSource creates a FixtureSource replaying readings in order.
func NewFixtureSource(identity Identity, readings ...RawReading) *FixtureSource {
	if identity == (Identity{}) {
		identity = DefaultIdentity
	}
	return &FixtureSource{
		identity: identity,
		readings: append([]RawReading(nil), readings...),
	}
}

// NewFixtureTemperatures builds a fixture from bare temperatures for the default sensor.
func NewFixtureTemperatures(temps ...float64) *FixtureSource {
	readings := make([]RawReading, len(temps))
	for i, t := range temps {
		readings[i] = RawReading{
			Temperature: t,
			SensorID:    DefaultIdentity.SensorID,
			Location:    DefaultIdentity.Location,
		}
	}
	return NewFixtureSource(DefaultIdentity, readings...)
}

// Produce returns the next reading in the sequence.
func (f *FixtureSource) Produce(_ context.Context) RawReading {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.next >= len(f.readings) {
		return Fallback(f.identity)
	}
	r := f.readings[f.next]
	f.next++
	return r
}

// Remaining reports how many fixture readings have not been produced yet.
func (f *FixtureSource) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings) - f.next
}

var (
	_ Source = (*SimulatedSource)(nil)
	_ Source = (*FixtureSource)(nil)
)
