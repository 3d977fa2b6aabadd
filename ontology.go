package mosaico

import (
	"time"

	"github.com/mosaicolabs/mosaico-go/internal/models"
)

// Serializable is the interface an ontology payload type implements to be
// writable through a TopicWriter and decodable on the read path. Ontology
// types register themselves once at process start via RegisterOntology.
type Serializable = models.Serializable

// Message is the universal envelope wrapping one ontology payload: a
// required nanosecond ingest timestamp plus an optional ROS-style header.
type Message = models.Message

// Header is the optional per-message sub-header (sequence id, acquisition
// stamp, frame id).
type Header = models.Header

// Time is the sec/nanosec split used by Header stamps.
type Time = models.Time

// RegisterOntology registers a constructor for an ontology tag; call it from
// an init() func of the package defining the payload type.
func RegisterOntology(tag string, ctor func() Serializable) {
	models.RegisterOntology(tag, ctor)
}

// NewMessage wraps payload data in an envelope, rejecting envelope/payload
// field-name collisions.
func NewMessage(timestampNs int64, data Serializable, header *Header) (*Message, error) {
	return models.NewMessage(timestampNs, data, header)
}

// NewTime validates a sec/nanosec pair, rejecting nanosec >= 1e9.
func NewTime(sec int64, nanosec uint32) (Time, error) { return models.NewTime(sec, nanosec) }

// TimeFromFloat, TimeFromNanoseconds, TimeFromMilliseconds, TimeFromDatetime
// and TimeNow mirror the models package conversions for callers that only
// import the root package.
func TimeFromFloat(seconds float64) Time { return models.TimeFromFloat(seconds) }
func TimeFromNanoseconds(n int64) Time   { return models.TimeFromNanoseconds(n) }
func TimeFromMilliseconds(ms int64) Time { return models.TimeFromMilliseconds(ms) }
func TimeFromDatetime(dt time.Time) Time { return models.TimeFromDatetime(dt) }
func TimeNow() Time                      { return models.TimeNow() }
