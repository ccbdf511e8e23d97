package artifact_sink

import "fmt"

// RecordTooLargeError is returned for a record which cannot fit in a PutLogEvents call on its own
type RecordTooLargeError struct {
	Size     int
	MaxBytes int
}

func (e *RecordTooLargeError) Error() string {
	return fmt.Sprintf("record of %d bytes exceeds the max batch size of %d bytes", e.Size, e.MaxBytes)
}
