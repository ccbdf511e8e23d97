package forwarder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	cloudwatch_types "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbot/tailpipe-elb-log-forwarder/artifact_loader"
	"github.com/turbot/tailpipe-elb-log-forwarder/artifact_mapper"
	"github.com/turbot/tailpipe-elb-log-forwarder/artifact_sink"
	"github.com/turbot/tailpipe-elb-log-forwarder/artifact_source"
	"github.com/turbot/tailpipe-elb-log-forwarder/fakes"
	"github.com/turbot/tailpipe-elb-log-forwarder/logging"
	"github.com/turbot/tailpipe-elb-log-forwarder/types"
)

const (
	testBucket   = "test-bucket"
	testLogGroup = "test-log-group"
	testKey      = "test-log.gz"

	elbLine = `http 2023-04-15T18:30:28.219742Z app/my-loadbalancer/50dc6c495c0c9188 192.168.131.39:2817 10.0.0.1:80 0.000 0.001 0.000 200 200 34 366 "GET http://www.example.com:80/ HTTP/1.1" "curl/7.46.0" - - arn:aws:elasticloadbalancing:us-east-2:123456789012:targetgroup/my-targets/73e2d6bc24d8a067 "Root=1-58337262-36d228ad5d99923122bbe354" "-" "-" 0 2018-07-02T22:22:48.364000Z "forward" "-" "-" "10.0.0.1:80" "200" "-" "-"`
)

type testEnv struct {
	s3   *fakes.S3
	logs *fakes.CloudWatchLogs
}

func newTestEnv() *testEnv {
	return &testEnv{
		s3:   fakes.NewS3(),
		logs: fakes.NewCloudWatchLogs(testLogGroup),
	}
}

func (e *testEnv) forwarder(limits artifact_sink.BatchLimits, opts ...ForwarderOption) *Forwarder {
	source := artifact_source.NewAwsS3BucketSource(e.s3)
	sink := artifact_sink.NewCloudWatchSink(e.logs, testLogGroup, limits, nil)
	return New(source, sink, opts...)
}

func (e *testEnv) putObject(t *testing.T, key string, lines ...string) {
	t.Helper()
	require.NoError(t, e.s3.PutGzip(testBucket, key, strings.Join(lines, "\n")+"\n"))
}

func s3Event(bucket, key string) events.S3Event {
	var r events.S3EventRecord
	r.S3.Bucket.Name = bucket
	r.S3.Object.Key = key
	return events.S3Event{Records: []events.S3EventRecord{r}}
}

// line builds an access log line with the given timestamp token
func line(i int, ts string) string {
	return fmt.Sprintf("https %s app/my-loadbalancer/50dc6c495c0c9188 192.168.131.39:%d 10.0.0.1:80", ts, 2800+i)
}

var oneRecordPerCall = artifact_sink.BatchLimits{MaxEvents: 1, MaxBytes: artifact_sink.MaxBatchBytes}

func TestForward_SingleELBLine(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, testKey, "  "+elbLine+"  ")

	res, err := env.forwarder(artifact_sink.DefaultBatchLimits()).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})
	require.NoError(t, err)

	assert.Equal(t, &Result{
		Stream:        types.DestinationStream{LogGroup: testLogGroup, LogStream: testKey},
		StreamCreated: true,
		Records:       1,
		Batches:       1,
	}, res)
	assert.Equal(t, []string{testKey}, env.logs.StreamNames(testLogGroup))
	assert.Equal(t, []types.LogRecord{{Timestamp: 1681583428219, Message: elbLine}}, env.logs.Events(testLogGroup, testKey))
}

func TestForward_RepeatedInvocationIsIdempotentOnStream(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, testKey, elbLine)
	f := env.forwarder(artifact_sink.DefaultBatchLimits())
	ref := types.TriggerReference{Bucket: testBucket, Key: testKey}

	first, err := f.Forward(context.Background(), ref)
	require.NoError(t, err)
	second, err := f.Forward(context.Background(), ref)
	require.NoError(t, err)

	assert.True(t, first.StreamCreated)
	assert.False(t, second.StreamCreated)
	assert.Equal(t, first.Stream, second.Stream)
	assert.Equal(t, []string{testKey}, env.logs.StreamNames(testLogGroup))
	// at-least-once: a repeated invocation publishes the records again
	assert.Len(t, env.logs.Events(testLogGroup, testKey), 2)
}

func TestForward_PreservesOrder(t *testing.T) {
	timestamps := []string{
		"2023-04-15T18:30:28.219742Z",
		"2023-04-15T18:30:29.000001Z",
		// out of order lines must keep their position
		"2023-04-15T18:30:27.500000Z",
		"2023-04-15T18:30:29.000001Z",
		"2023-04-16T18:30:30.000000Z",
	}
	var lines []string
	for i, ts := range timestamps {
		lines = append(lines, line(i, ts))
	}

	for name, limits := range map[string]artifact_sink.BatchLimits{
		"batched":             artifact_sink.DefaultBatchLimits(),
		"one record per call": oneRecordPerCall,
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv()
			env.putObject(t, testKey, lines...)

			res, err := env.forwarder(limits).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})
			require.NoError(t, err)
			assert.Equal(t, len(lines), res.Records)

			got := env.logs.Events(testLogGroup, testKey)
			require.Len(t, got, len(lines))
			for i, l := range lines {
				assert.Equal(t, l, got[i].Message)
				want, err := artifact_mapper.ParseTimestamp(timestamps[i])
				require.NoError(t, err)
				assert.Equal(t, want, got[i].Timestamp)
			}
		})
	}
}

func TestForward_MalformedLinePublishesPrefix(t *testing.T) {
	lines := []string{
		line(1, "2023-04-15T18:30:28.000000Z"),
		line(2, "2023-04-15T18:30:29.000000Z"),
		"https not-a-timestamp app/my-loadbalancer",
		line(4, "2023-04-15T18:30:30.000000Z"),
	}
	for name, limits := range map[string]artifact_sink.BatchLimits{
		"batched":             artifact_sink.DefaultBatchLimits(),
		"one record per call": oneRecordPerCall,
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv()
			env.putObject(t, testKey, lines...)

			res, err := env.forwarder(limits).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})

			var formatErr *artifact_mapper.FormatError
			require.ErrorAs(t, err, &formatErr)
			assert.Equal(t, 3, formatErr.Line)
			assert.Equal(t, 2, res.Records)

			got := env.logs.Events(testLogGroup, testKey)
			require.Len(t, got, 2)
			assert.Equal(t, lines[0], got[0].Message)
			assert.Equal(t, lines[1], got[1].Message)
		})
	}
}

func TestForward_LineWithoutSecondField(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, testKey, line(1, "2023-04-15T18:30:28.000000Z"), "", line(3, "2023-04-15T18:30:29.000000Z"))

	res, err := env.forwarder(artifact_sink.DefaultBatchLimits()).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})

	var formatErr *artifact_mapper.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, 2, formatErr.Line)
	assert.Equal(t, 1, res.Records)
}

func TestForward_SkipMalformedLines(t *testing.T) {
	env := newTestEnv()
	lines := []string{
		line(1, "2023-04-15T18:30:28.000000Z"),
		"https not-a-timestamp app/my-loadbalancer",
		"",
		line(4, "2023-04-15T18:30:30.000000Z"),
	}
	env.putObject(t, testKey, lines...)

	res, err := env.forwarder(artifact_sink.DefaultBatchLimits(), WithSkipMalformedLines(true)).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 2, res.Skipped)
	got := env.logs.Events(testLogGroup, testKey)
	require.Len(t, got, 2)
	assert.Equal(t, lines[0], got[0].Message)
	assert.Equal(t, lines[3], got[1].Message)
}

func TestForward_InvalidUTF8IsFatalEvenWhenSkipping(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, testKey, line(1, "2023-04-15T18:30:28.000000Z"), "https 2023-04-15T18:30:29.000000Z \xff\xfe", line(3, "2023-04-15T18:30:30.000000Z"))

	res, err := env.forwarder(artifact_sink.DefaultBatchLimits(), WithSkipMalformedLines(true)).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})

	var decodeErr *artifact_loader.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 2, decodeErr.Line)
	assert.Equal(t, 1, res.Records)
	assert.Len(t, env.logs.Events(testLogGroup, testKey), 1)
}

func TestForward_LineTooLong(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, testKey, line(1, "2023-04-15T18:30:28.000000Z"), "https 2023-04-15T18:30:29.000000Z "+strings.Repeat("x", 2048))

	res, err := env.forwarder(artifact_sink.DefaultBatchLimits(), WithMaxLineSize(1024)).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})

	assert.ErrorContains(t, err, "maximum line size")
	assert.Equal(t, 1, res.Records)
}

func TestForward_DefaultLineSizeFollowsBatchLimits(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, testKey, line(1, "2023-04-15T18:30:28.000000Z"), "https 2023-04-15T18:30:29.000000Z "+strings.Repeat("x", 2048))
	limits := artifact_sink.BatchLimits{MaxEvents: artifact_sink.MaxBatchEvents, MaxBytes: 1000}

	res, err := env.forwarder(limits).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})

	assert.ErrorContains(t, err, "maximum line size")
	assert.Equal(t, 1, res.Records)
	assert.Len(t, env.logs.Events(testLogGroup, testKey), 1)
}

func TestForward_RecordLargerThanBatchIsFatal(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, testKey,
		line(1, "2023-04-15T18:30:28.000000Z"),
		"https 2023-04-15T18:30:29.000000Z "+strings.Repeat("x", 2048),
		line(3, "2023-04-15T18:30:30.000000Z"),
	)
	limits := artifact_sink.BatchLimits{MaxEvents: artifact_sink.MaxBatchEvents, MaxBytes: 1000}

	res, err := env.forwarder(limits, WithMaxLineSize(4096)).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})

	var tooLarge *artifact_sink.RecordTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.ErrorContains(t, err, "line 2")
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 1, env.logs.PutCalls)
	assert.Len(t, env.logs.Events(testLogGroup, testKey), 1)
}

func TestForward_PublishFailureAbortsRemainingRecords(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, testKey,
		line(1, "2023-04-15T18:30:28.000000Z"),
		line(2, "2023-04-15T18:30:29.000000Z"),
		line(3, "2023-04-15T18:30:30.000000Z"),
	)
	env.logs.PutErr = &cloudwatch_types.ServiceUnavailableException{Message: aws.String("unavailable")}
	env.logs.FailPutOnCall = 2

	res, err := env.forwarder(oneRecordPerCall).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})

	var unavailable *cloudwatch_types.ServiceUnavailableException
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 2, env.logs.PutCalls)
	assert.Len(t, env.logs.Events(testLogGroup, testKey), 1)
}

func TestForward_StreamCreationFailureStopsBeforeFetch(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, testKey, elbLine)
	env.logs.CreateErr = &cloudwatch_types.ServiceUnavailableException{Message: aws.String("unavailable")}

	_, err := env.forwarder(artifact_sink.DefaultBatchLimits()).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})

	assert.Error(t, err)
	assert.Zero(t, env.s3.GetCalls)
	assert.Zero(t, env.logs.PutCalls)
}

func TestForward_FetchErrorsAreFatal(t *testing.T) {
	tests := []struct {
		name          string
		getErr        error
		wantThrottled bool
	}{
		{
			name:          "Throttled",
			getErr:        &smithy.GenericAPIError{Code: "SlowDown", Message: "Please reduce your request rate."},
			wantThrottled: true,
		},
		{
			name:   "Access denied",
			getErr: &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"},
		},
		{
			name: "Missing object",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.s3.GetErr = tt.getErr

			res, err := env.forwarder(artifact_sink.DefaultBatchLimits()).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})

			var fetchErr *artifact_source.FetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, tt.wantThrottled, fetchErr.Throttled())
			assert.Zero(t, res.Records)
			assert.Zero(t, env.logs.PutCalls)
		})
	}
}

func TestForward_EmptyObject(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.s3.PutGzip(testBucket, testKey, ""))

	res, err := env.forwarder(artifact_sink.DefaultBatchLimits()).Forward(context.Background(), types.TriggerReference{Bucket: testBucket, Key: testKey})
	require.NoError(t, err)

	assert.True(t, res.StreamCreated)
	assert.Zero(t, res.Records)
	assert.Zero(t, env.logs.PutCalls)
}

func TestHandleS3Event_DecodesKey(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, "logs/a+b c.gz", elbLine)

	err := env.forwarder(artifact_sink.DefaultBatchLimits()).HandleS3Event(context.Background(), s3Event(testBucket, "logs%2Fa%2Bb+c.gz"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a+b c.gz"}, env.logs.StreamNames(testLogGroup))
	assert.Len(t, env.logs.Events(testLogGroup, "a+b c.gz"), 1)
}

func TestHandleS3Event_ThrottlingFailsInvocation(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, testKey, elbLine)
	env.s3.GetErr = &smithy.GenericAPIError{Code: artifact_source.SlowDownErrorCode, Message: "Please reduce your request rate."}

	err := env.forwarder(artifact_sink.DefaultBatchLimits()).HandleS3Event(context.Background(), s3Event(testBucket, testKey))

	require.Error(t, err)
	assert.ErrorIs(t, err, artifact_source.ErrThrottled)
	assert.Empty(t, env.logs.Events(testLogGroup, testKey))
}

func TestHandleS3Event_InvalidEvent(t *testing.T) {
	env := newTestEnv()

	err := env.forwarder(artifact_sink.DefaultBatchLimits()).HandleS3Event(context.Background(), events.S3Event{})

	assert.ErrorIs(t, err, artifact_source.ErrInvalidTrigger)
	assert.Zero(t, env.logs.CreateCalls)
}

func TestHandleS3Event_LogsCarryRequestId(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(logging.NewLogger("elb-log-forwarder", &buf, "debug"))
	t.Cleanup(func() { slog.SetDefault(previous) })

	env := newTestEnv()
	env.putObject(t, testKey, line(1, "2023-04-15T18:30:28.000000Z"), "malformed")
	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})

	err := env.forwarder(artifact_sink.DefaultBatchLimits(), WithSkipMalformedLines(true)).HandleS3Event(ctx, s3Event(testBucket, testKey))
	require.NoError(t, err)

	output := strings.TrimSpace(buf.String())
	for _, message := range []string{"Created log stream", "Opened artifact", "Skipping malformed line", "Forwarded artifact"} {
		assert.Contains(t, output, `"msg":"`+message+`"`)
	}
	for _, entry := range strings.Split(output, "\n") {
		assert.Contains(t, entry, `"request_id":"req-1"`)
	}
}

type panickingMapper struct{}

func (panickingMapper) Map(context.Context, types.RawLogLine) (types.LogRecord, error) {
	panic("boom")
}

func TestHandleS3Event_PanicBecomesError(t *testing.T) {
	env := newTestEnv()
	env.putObject(t, testKey, elbLine)

	err := env.forwarder(artifact_sink.DefaultBatchLimits(), WithMapper(panickingMapper{})).HandleS3Event(context.Background(), s3Event(testBucket, testKey))

	assert.ErrorContains(t, err, "boom")
}
