package artifact_mapper

import (
	"context"

	"github.com/turbot/tailpipe-elb-log-forwarder/types"
)

// Mapper converts a raw log line into the record published to the log store
type Mapper interface {
	Map(context.Context, types.RawLogLine) (types.LogRecord, error)
}
