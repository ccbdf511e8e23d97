package artifact_loader

import "fmt"

// DecodeError is returned for a line which is not valid UTF-8
type DecodeError struct {
	Line int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d is not valid UTF-8", e.Line)
}
