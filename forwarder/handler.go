package forwarder

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/turbot/go-kit/helpers"
	"github.com/turbot/tailpipe-elb-log-forwarder/artifact_source"
	"github.com/turbot/tailpipe-elb-log-forwarder/logging"
)

// HandleS3Event is the Lambda handler. The returned error fails the invocation, leaving
// retries (including backing off after S3 throttling) to the Lambda runtime.
func (f *Forwarder) HandleS3Event(ctx context.Context, event events.S3Event) (err error) {
	logger := slog.Default()
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With("request_id", lc.AwsRequestID)
	}
	ctx = logging.WithLogger(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			err = helpers.ToError(r)
			logger.Error("Panic while forwarding artifact", "error", err)
		}
	}()

	ref, err := artifact_source.TriggerFromS3Event(ctx, event)
	if err != nil {
		logger.Error("Invalid S3 event", "error", err)
		return err
	}

	res, err := f.Forward(ctx, ref)
	if err != nil {
		logger.Error("Failed to forward artifact",
			"artifact", ref.String(),
			"log_stream", res.Stream.LogStream,
			"published", res.Records,
			"throttled", errors.Is(err, artifact_source.ErrThrottled),
			"error", err)
		return err
	}

	logger.Info("Forwarded artifact",
		"artifact", ref.String(),
		"log_group", res.Stream.LogGroup,
		"log_stream", res.Stream.LogStream,
		"stream_created", res.StreamCreated,
		"records", res.Records,
		"batches", res.Batches,
		"skipped", res.Skipped)
	return nil
}
