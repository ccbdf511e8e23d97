package artifact_sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cloudwatch_types "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/turbot/tailpipe-elb-log-forwarder/logging"
	"github.com/turbot/tailpipe-elb-log-forwarder/rate_limiter"
	"github.com/turbot/tailpipe-elb-log-forwarder/types"
)

// StreamResult is the outcome of [CloudWatchSink.EnsureStream]
type StreamResult struct {
	Stream types.DestinationStream
	// Created is false when the stream already existed
	Created bool
}

// CloudWatchSink publishes log records to streams of a single CloudWatch log group
type CloudWatchSink struct {
	client   CloudWatchLogsAPI
	logGroup string
	limits   BatchLimits
	limiter  *rate_limiter.APILimiter
}

// NewCloudWatchSink creates a sink for logGroup. limiter may be nil.
func NewCloudWatchSink(client CloudWatchLogsAPI, logGroup string, limits BatchLimits, limiter *rate_limiter.APILimiter) *CloudWatchSink {
	return &CloudWatchSink{
		client:   client,
		logGroup: logGroup,
		limits:   limits,
		limiter:  limiter,
	}
}

func NewCloudWatchLogsClient(cfg *aws.Config) *cloudwatchlogs.Client {
	return cloudwatchlogs.NewFromConfig(*cfg)
}

func (s *CloudWatchSink) Limits() BatchLimits {
	return s.limits
}

// EnsureStream creates the named log stream. A stream which already exists is not an error.
func (s *CloudWatchSink) EnsureStream(ctx context.Context, name string) (StreamResult, error) {
	stream := types.DestinationStream{LogGroup: s.logGroup, LogStream: name}

	_, err := s.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(s.logGroup),
		LogStreamName: aws.String(name),
	})
	if err != nil {
		var exists *cloudwatch_types.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			logging.FromContext(ctx).Debug("Log stream already exists", "log_group", s.logGroup, "log_stream", name)
			return StreamResult{Stream: stream, Created: false}, nil
		}
		return StreamResult{}, fmt.Errorf("failed to create log stream %s in log group %s, %w", name, s.logGroup, err)
	}

	logging.FromContext(ctx).Info("Created log stream", "log_group", s.logGroup, "log_stream", name)
	return StreamResult{Stream: stream, Created: true}, nil
}

// NewPublisher returns a publisher appending to the given stream, which must already exist
func (s *CloudWatchSink) NewPublisher(stream types.DestinationStream) *Publisher {
	return &Publisher{
		sink:   s,
		stream: stream,
	}
}

func (s *CloudWatchSink) putLogEvents(ctx context.Context, stream types.DestinationStream, events []cloudwatch_types.InputLogEvent) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("error acquiring rate limiter: %w", err)
	}

	output, err := s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(stream.LogGroup),
		LogStreamName: aws.String(stream.LogStream),
		LogEvents:     events,
	})
	if err != nil {
		return fmt.Errorf("failed to put log events to %s/%s, %w", stream.LogGroup, stream.LogStream, err)
	}

	if rejected := output.RejectedLogEventsInfo; rejected != nil {
		logging.FromContext(ctx).Warn("Log events rejected",
			"log_group", stream.LogGroup,
			"log_stream", stream.LogStream,
			"too_new_start_index", aws.ToInt32(rejected.TooNewLogEventStartIndex),
			"too_old_end_index", aws.ToInt32(rejected.TooOldLogEventEndIndex),
			"expired_end_index", aws.ToInt32(rejected.ExpiredLogEventEndIndex))
	}
	return nil
}
