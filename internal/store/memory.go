package store

import (
	"errors"
	"sync"

	"github.com/i474232898/temperature-etl/internal/sensor"
)

// DefaultMaxRecords is the retention capacity used when none is configured.
const DefaultMaxRecords = 100

var (
	// ErrUnprocessed is returned when a record that did not pass the transformer is appended.
	ErrUnprocessed = errors.New("record has not been processed")
)

// MemoryStore is a concurrency-safe, fixed-capacity FIFO of records plus the
// running pipeline statistics. Appending to a full store evicts the oldest record.
type MemoryStore struct {
	mu sync.RWMutex

	// ring buffer; head is the index of the oldest record
	records []sensor.Record
	head    int
	size    int

	stats sensor.Stats
}

// NewMemoryStore creates a store retaining at most maxRecords records.
// If maxRecords is <= 0, DefaultMaxRecords is used.
func NewMemoryStore(maxRecords int) *MemoryStore {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &MemoryStore{
		records: make([]sensor.Record, maxRecords),
	}
}

// Append adds rec as the newest record, evicting the oldest one when full.
func (s *MemoryStore) Append(rec sensor.Record) error {
	if !rec.Processed || rec.Timestamp <= 0 {
		return ErrUnprocessed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := len(s.records)
	if s.size == capacity {
		s.records[s.head] = rec
		s.head = (s.head + 1) % capacity
	} else {
		s.records[(s.head+s.size)%capacity] = rec
		s.size++
	}

	s.stats.TotalRecords++
	s.stats.LastProcessed = rec.Timestamp
	return nil
}

// Snapshot returns a copy of all retained records, oldest first.
func (s *MemoryStore) Snapshot() []sensor.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]sensor.Record, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.at(i)
	}
	return out
}

// Latest returns the most recently appended record.
func (s *MemoryStore) Latest() (sensor.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.size == 0 {
		return sensor.Record{}, false
	}
	return s.at(s.size - 1), true
}

// Range returns all records with start <= timestamp <= end (inclusive), in insertion order.
func (s *MemoryStore) Range(start, end int64) []sensor.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []sensor.Record{}
	for i := 0; i < s.size; i++ {
		rec := s.at(i)
		if rec.Timestamp >= start && rec.Timestamp <= end {
			result = append(result, rec)
		}
	}
	return result
}

// Stats returns a copy of the current counters.
func (s *MemoryStore) Stats() sensor.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// RecordValid counts a reading that passed validation.
func (s *MemoryStore) RecordValid() {
	s.mu.Lock()
	s.stats.ValidRecords++
	s.mu.Unlock()
}

// RecordInvalid counts a reading that failed validation.
func (s *MemoryStore) RecordInvalid() {
	s.mu.Lock()
	s.stats.InvalidRecords++
	s.mu.Unlock()
}

// Len returns the number of retained records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Cap returns the retention capacity.
func (s *MemoryStore) Cap() int {
	return len(s.records)
}

// Reset drops all records and zeroes the counters.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.records)
	s.head = 0
	s.size = 0
	s.stats = sensor.Stats{}
}

// at returns the i-th oldest record. Callers must hold s.mu.
func (s *MemoryStore) at(i int) sensor.Record {
	return s.records[(s.head+i)%len(s.records)]
}

var _ sensor.ValidationRecorder = (*MemoryStore)(nil)
