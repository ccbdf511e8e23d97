package artifact_mapper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/turbot/tailpipe-elb-log-forwarder/types"
)

const (
	// TimestampLayout matches e.g. 2023-04-15T18:30:28.219742Z - UTC with exactly six fractional digits
	TimestampLayout = "2006-01-02T15:04:05.000000Z"
	// timestampField is the 0-based position of the timestamp in a space delimited line
	timestampField = 1
)

// FormatError is returned for a line whose timestamp field is missing or invalid
type FormatError struct {
	Line  int
	Token string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("line %d has no timestamp field", e.Line)
	}
	return fmt.Sprintf("line %d has an invalid timestamp %q, %s", e.Line, e.Token, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// TimestampMapper extracts the timestamp from the second space delimited field of an
// access log line (as written by ELB/ALB) and keeps the whole line as the message
type TimestampMapper struct{}

func NewTimestampMapper() Mapper {
	return &TimestampMapper{}
}

func (m *TimestampMapper) Map(_ context.Context, line types.RawLogLine) (types.LogRecord, error) {
	fields := strings.SplitN(line.Text, " ", timestampField+2)
	if len(fields) <= timestampField {
		return types.LogRecord{}, &FormatError{Line: line.Number}
	}

	token := fields[timestampField]
	ts, err := ParseTimestamp(token)
	if err != nil {
		return types.LogRecord{}, &FormatError{Line: line.Number, Token: token, Err: err}
	}

	return types.LogRecord{
		Timestamp: ts,
		Message:   line.Text,
	}, nil
}

// ParseTimestamp converts a timestamp token into epoch milliseconds.
// The microsecond tail is truncated, with no floating point involved.
func ParseTimestamp(token string) (int64, error) {
	t, err := time.Parse(TimestampLayout, token)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
