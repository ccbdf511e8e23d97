package artifact_sink

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudwatch_types "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/turbot/tailpipe-elb-log-forwarder/types"
)

// PublishStats counts what a [Publisher] has sent
type PublishStats struct {
	Records int
	Batches int
}

// Publisher appends records to one stream in the order they are added.
// Consecutive records are grouped into a single PutLogEvents call while the batch stays
// within the configured limits, spans no more than 24 hours and is in chronological order.
// A Publisher is not safe for concurrent use.
type Publisher struct {
	sink   *CloudWatchSink
	stream types.DestinationStream

	batch      []cloudwatch_types.InputLogEvent
	batchBytes int
	first      int64
	last       int64

	stats PublishStats
}

// Add queues a record, publishing the pending batch first if the record cannot join it.
// A record larger than the max batch size is never sent: the pending batch is published
// and a [RecordTooLargeError] returned.
func (p *Publisher) Add(ctx context.Context, record types.LogRecord) error {
	size := len(record.Message) + EventOverheadBytes
	if size > p.sink.limits.MaxBytes {
		if err := p.Flush(ctx); err != nil {
			return err
		}
		return &RecordTooLargeError{Size: size, MaxBytes: p.sink.limits.MaxBytes}
	}

	if p.mustFlushBefore(record, size) {
		if err := p.Flush(ctx); err != nil {
			return err
		}
	}

	if len(p.batch) == 0 {
		p.first = record.Timestamp
	}
	p.last = record.Timestamp
	p.batch = append(p.batch, cloudwatch_types.InputLogEvent{
		Message:   aws.String(record.Message),
		Timestamp: aws.Int64(record.Timestamp),
	})
	p.batchBytes += size

	if len(p.batch) >= p.sink.limits.MaxEvents {
		return p.Flush(ctx)
	}
	return nil
}

func (p *Publisher) mustFlushBefore(record types.LogRecord, size int) bool {
	if len(p.batch) == 0 {
		return false
	}
	switch {
	case p.batchBytes+size > p.sink.limits.MaxBytes:
		return true
	// events within a call must be in chronological order
	case record.Timestamp < p.last:
		return true
	case record.Timestamp-p.first > MaxBatchSpan.Milliseconds():
		return true
	}
	return false
}

// Flush publishes any pending records
func (p *Publisher) Flush(ctx context.Context) error {
	if len(p.batch) == 0 {
		return nil
	}
	if err := p.sink.putLogEvents(ctx, p.stream, p.batch); err != nil {
		return err
	}

	p.stats.Records += len(p.batch)
	p.stats.Batches++
	p.batch = nil
	p.batchBytes = 0
	return nil
}

// Pending returns the number of records added but not yet published
func (p *Publisher) Pending() int {
	return len(p.batch)
}

func (p *Publisher) Stats() PublishStats {
	return p.stats
}
