package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/turbot/tailpipe-elb-log-forwarder/artifact_loader"
	"github.com/turbot/tailpipe-elb-log-forwarder/artifact_mapper"
	"github.com/turbot/tailpipe-elb-log-forwarder/artifact_sink"
	"github.com/turbot/tailpipe-elb-log-forwarder/artifact_source"
	"github.com/turbot/tailpipe-elb-log-forwarder/config"
	"github.com/turbot/tailpipe-elb-log-forwarder/logging"
	"github.com/turbot/tailpipe-elb-log-forwarder/rate_limiter"
	"github.com/turbot/tailpipe-elb-log-forwarder/types"
)

// Source opens the decompressed content of a triggering object
type Source interface {
	Open(ctx context.Context, ref types.TriggerReference) (io.ReadCloser, error)
}

// Result describes a single forwarded artifact. On failure it describes the published prefix.
type Result struct {
	Stream        types.DestinationStream
	StreamCreated bool
	// Records is the number of records published
	Records int
	Batches int
	// Skipped is the number of malformed lines skipped
	Skipped int
}

// Forwarder copies the lines of an S3 artifact to a CloudWatch log stream
type Forwarder struct {
	source Source
	sink   *artifact_sink.CloudWatchSink
	mapper artifact_mapper.Mapper

	maxLineSize        int
	skipMalformedLines bool
}

func New(source Source, sink *artifact_sink.CloudWatchSink, opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		source:      source,
		sink:        sink,
		mapper:      artifact_mapper.NewTimestampMapper(),
		maxLineSize: sink.Limits().MaxMessageBytes(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFromConfig builds the AWS clients once and returns a Forwarder using them
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Forwarder, error) {
	awsCfg, err := cfg.Aws.GetClientConfiguration(ctx)
	if err != nil {
		return nil, err
	}

	source := artifact_source.NewAwsS3BucketSource(artifact_source.NewS3Client(awsCfg, cfg.Aws))
	limiter := rate_limiter.NewAPILimiter(cfg.PutLogEventsLimiter())
	sink := artifact_sink.NewCloudWatchSink(artifact_sink.NewCloudWatchLogsClient(awsCfg), cfg.LogGroup, cfg.BatchLimits, limiter)

	slog.Info("Initialized forwarder",
		"log_group", cfg.LogGroup,
		"region", awsCfg.Region,
		"max_batch_events", cfg.BatchLimits.MaxEvents,
		"max_batch_bytes", cfg.BatchLimits.MaxBytes,
		"put_rate_limit", limiter.String(),
		"skip_malformed_lines", cfg.SkipMalformedLines)

	return New(source, sink,
		WithMaxLineSize(int(cfg.MaxLineSize.Bytes())),
		WithSkipMalformedLines(cfg.SkipMalformedLines),
	), nil
}

// Forward ensures the destination stream exists then publishes every line of the artifact to it, in order.
// Any error aborts the remaining lines - the records already published stay published.
func (f *Forwarder) Forward(ctx context.Context, ref types.TriggerReference) (res *Result, err error) {
	res = &Result{}

	streamResult, err := f.sink.EnsureStream(ctx, ref.StreamName())
	if err != nil {
		return res, err
	}
	res.Stream = streamResult.Stream
	res.StreamCreated = streamResult.Created

	r, err := f.source.Open(ctx, ref)
	if err != nil {
		return res, err
	}
	defer r.Close()

	publisher := f.sink.NewPublisher(streamResult.Stream)
	defer func() {
		stats := publisher.Stats()
		res.Records = stats.Records
		res.Batches = stats.Batches
	}()

	loader := artifact_loader.NewLineLoader(r, f.maxLineSize)
	for loader.Next() {
		line := loader.Line()

		record, err := f.mapper.Map(ctx, line)
		if err != nil {
			var formatErr *artifact_mapper.FormatError
			if f.skipMalformedLines && errors.As(err, &formatErr) {
				logging.FromContext(ctx).Warn("Skipping malformed line", "artifact", ref.String(), "line", line.Number, "error", err)
				res.Skipped++
				continue
			}
			return res, f.abort(ctx, publisher, ref, err)
		}

		if err := publisher.Add(ctx, record); err != nil {
			return res, fmt.Errorf("failed to publish line %d of %s, %w", line.Number, ref.String(), err)
		}
	}
	if err := loader.Err(); err != nil {
		return res, f.abort(ctx, publisher, ref, err)
	}

	return res, publisher.Flush(ctx)
}

// abort publishes the records queued ahead of a parse failure, so the stream holds
// every line before the failing one
func (f *Forwarder) abort(ctx context.Context, publisher *artifact_sink.Publisher, ref types.TriggerReference, cause error) error {
	cause = fmt.Errorf("failed to parse %s, %w", ref.String(), cause)
	if err := publisher.Flush(ctx); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
