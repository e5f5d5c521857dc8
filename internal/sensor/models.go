package sensor

import (
	"math"
	"time"
)

// RawReading is a single observation as produced by a Source.
// It is not retained; the Transformer turns it into a Record.
type RawReading struct {
	Temperature float64
	Humidity    *float64 // optional, not all sources report it
	SensorID    string
	Location    string
}

// Record is a validated, normalized reading owned by the history store.
type Record struct {
	Temperature float64 `json:"temperature"` // rounded to 2 decimal places
	Timestamp   int64   `json:"timestamp"`   // unix milliseconds, assigned at transform time
	SensorID    string  `json:"sensorId"`
	Location    string  `json:"location"`
	Processed   bool    `json:"processed"`
}

// Time returns the record timestamp as a time.Time in UTC.
func (r Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp).UTC()
}

// Stats holds the running quality counters of the pipeline.
type Stats struct {
	TotalRecords   int64 `json:"totalRecords"`
	ValidRecords   int64 `json:"validRecords"`
	InvalidRecords int64 `json:"invalidRecords"`
	LastProcessed  int64 `json:"lastProcessed"` // unix milliseconds, 0 if nothing was loaded
}

// Identity names the single logical sensor a source reports for.
type Identity struct {
	SensorID string
	Location string
}

// DefaultIdentity matches the simulated office sensor.
var DefaultIdentity = Identity{
	SensorID: "TEMP_001",
	Location: "Office Building - Floor 1",
}

// FallbackTemperature is reported whenever a source cannot produce a value.
const FallbackTemperature = 20.0

// Fallback returns the safe reading substituted on source failure.
func Fallback(id Identity) RawReading {
	return RawReading{
		Temperature: FallbackTemperature,
		SensorID:    id.SensorID,
		Location:    id.Location,
	}
}

// Round2 rounds v to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
