package artifact_sink

import (
	"fmt"
	"time"
)

// PutLogEvents service limits
const (
	MaxBatchEvents = 10000
	MaxBatchBytes  = 1048576
	// EventOverheadBytes is added to the message length of every event when sizing a batch
	EventOverheadBytes = 26
	MaxBatchSpan       = 24 * time.Hour
)

// BatchLimits bounds the events sent in a single PutLogEvents call.
// MaxEvents of 1 publishes every record in its own call.
type BatchLimits struct {
	MaxEvents int
	MaxBytes  int
}

func DefaultBatchLimits() BatchLimits {
	return BatchLimits{
		MaxEvents: MaxBatchEvents,
		MaxBytes:  MaxBatchBytes,
	}
}

// MaxMessageBytes is the longest message which fits in a batch on its own
func (l BatchLimits) MaxMessageBytes() int {
	return l.MaxBytes - EventOverheadBytes
}

func (l BatchLimits) Validate() error {
	if l.MaxEvents < 1 || l.MaxEvents > MaxBatchEvents {
		return fmt.Errorf("max batch events must be between 1 and %d, got %d", MaxBatchEvents, l.MaxEvents)
	}
	if l.MaxBytes <= EventOverheadBytes || l.MaxBytes > MaxBatchBytes {
		return fmt.Errorf("max batch size must be between %d and %d bytes, got %d", EventOverheadBytes+1, MaxBatchBytes, l.MaxBytes)
	}
	return nil
}
