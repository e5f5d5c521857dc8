package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/temperature-etl/internal/metrics"
	"github.com/i474232898/temperature-etl/internal/scheduler"
	"github.com/i474232898/temperature-etl/internal/sensor"
)

// Store is the contract the history store must satisfy.
type Store interface {
	sensor.ValidationRecorder

	Append(rec sensor.Record) error
	Snapshot() []sensor.Record
	Latest() (sensor.Record, bool)
	Range(start, end int64) []sensor.Record
	Stats() sensor.Stats
	Len() int
	Reset()
}

// Outcome describes how a single cycle ended.
type Outcome string

const (
	OutcomeLoaded     Outcome = metrics.OutcomeLoaded
	OutcomeRejected   Outcome = metrics.OutcomeRejected
	OutcomeLoadFailed Outcome = metrics.OutcomeLoadFailed
	OutcomeFault      Outcome = metrics.OutcomeFault
)

// Service runs the extract -> transform -> load pipeline and answers queries
// over the records it has loaded.
type Service struct {
	store       Store
	source      sensor.Source
	transformer *sensor.Transformer
	scheduler   *scheduler.Scheduler
	metrics     *metrics.Collector
	logger      *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics records cycle outcomes in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithLogger sets the logger used by the service and its scheduler.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service. The transformer should report validation
// outcomes to store so that the counters live next to the records.
func NewService(store Store, source sensor.Source, transformer *sensor.Transformer, opts ...Option) *Service {
	s := &Service{
		store:       store,
		source:      source,
		transformer: transformer,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.scheduler = scheduler.New(func(ctx context.Context) {
		s.RunCycle(ctx)
	}, s.logger).OnSkip(s.metrics.ObserveSkip)
	s.logger = s.logger.With("component", "etl")

	return s
}

// RunCycle performs one extract -> transform -> load pass. Failures at any
// stage are logged and end the cycle; they are never returned.
func (s *Service) RunCycle(ctx context.Context) (outcome Outcome) {
	start := time.Now()
	log := s.logger.With("cycle_id", uuid.NewString())

	defer func() {
		if r := recover(); r != nil {
			log.Error("etl cycle error", "panic", r)
			outcome = OutcomeFault
		}
		s.metrics.ObserveCycle(string(outcome), time.Since(start), s.store.Len())
	}()

	raw := s.source.Produce(ctx)
	log.Debug("extracted reading", "temperature", raw.Temperature, "sensor_id", raw.SensorID)

	rec, ok := s.transformer.Transform(raw)
	if !ok {
		return OutcomeRejected
	}

	if err := s.load(rec); err != nil {
		log.Error("error loading data", "error", err)
		return OutcomeLoadFailed
	}

	s.metrics.SetLastTemperature(rec.Temperature)
	log.Info("data loaded", "temperature", rec.Temperature, "at", rec.Time().Format(time.TimeOnly))
	return OutcomeLoaded
}

func (s *Service) load(rec sensor.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("appending record panicked: %v", r)
		}
	}()
	if err := s.store.Append(rec); err != nil {
		return fmt.Errorf("appending record: %w", err)
	}
	return nil
}

// Start begins periodic ingestion. It is idempotent while the pipeline runs.
func (s *Service) Start(interval time.Duration) error {
	_, err := s.scheduler.Start(interval)
	return err
}

// Running reports whether periodic ingestion is active.
func (s *Service) Running() bool {
	return s.scheduler.State() == scheduler.Running
}

// Scheduler exposes the underlying scheduler.
func (s *Service) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Reset stops ingestion, then clears all records and counters.
func (s *Service) Reset() {
	s.scheduler.StopThen(s.store.Reset)
	s.logger.Info("pipeline reset")
}

// AllRecords returns the retained records, oldest first. A positive limit
// keeps only the most recent limit records.
func (s *Service) AllRecords(limit int) []sensor.Record {
	records := s.store.Snapshot()
	if limit > 0 && limit < len(records) {
		records = records[len(records)-limit:]
	}
	return records
}

// Latest returns the most recently loaded record, if any.
func (s *Service) Latest() (sensor.Record, bool) {
	return s.store.Latest()
}

// Stats returns a copy of the pipeline counters.
func (s *Service) Stats() sensor.Stats {
	return s.store.Stats()
}

// Range returns the records whose timestamps fall within [startMs, endMs].
func (s *Service) Range(startMs, endMs int64) []sensor.Record {
	return s.store.Range(startMs, endMs)
}
