// Package fakes provides in-memory stand-ins for the S3 and CloudWatch Logs APIs used in tests
package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cloudwatch_types "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/turbot/tailpipe-elb-log-forwarder/types"
)

// CloudWatchLogs is an in-memory log store which enforces the PutLogEvents constraints
// the forwarder depends on
type CloudWatchLogs struct {
	mu sync.Mutex

	// log group -> stream -> events
	groups map[string]map[string][]types.LogRecord

	CreateCalls int
	PutCalls    int

	// CreateErr is returned by every CreateLogStream call when set
	CreateErr error
	// PutErr is returned by the PutLogEvents call numbered FailPutOnCall (1-based), or every call if 0
	PutErr        error
	FailPutOnCall int
}

func NewCloudWatchLogs(logGroups ...string) *CloudWatchLogs {
	res := &CloudWatchLogs{groups: make(map[string]map[string][]types.LogRecord)}
	for _, g := range logGroups {
		res.groups[g] = make(map[string][]types.LogRecord)
	}
	return res
}

func (c *CloudWatchLogs) CreateLogStream(_ context.Context, params *cloudwatchlogs.CreateLogStreamInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.CreateCalls++
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}

	group, ok := c.groups[aws.ToString(params.LogGroupName)]
	if !ok {
		return nil, &cloudwatch_types.ResourceNotFoundException{Message: aws.String("The specified log group does not exist.")}
	}
	name := aws.ToString(params.LogStreamName)
	if _, exists := group[name]; exists {
		return nil, &cloudwatch_types.ResourceAlreadyExistsException{Message: aws.String("The specified log stream already exists")}
	}
	group[name] = []types.LogRecord{}
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func (c *CloudWatchLogs) PutLogEvents(_ context.Context, params *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.PutCalls++
	if c.PutErr != nil && (c.FailPutOnCall == 0 || c.FailPutOnCall == c.PutCalls) {
		return nil, c.PutErr
	}

	group, ok := c.groups[aws.ToString(params.LogGroupName)]
	if !ok {
		return nil, &cloudwatch_types.ResourceNotFoundException{Message: aws.String("The specified log group does not exist.")}
	}
	name := aws.ToString(params.LogStreamName)
	stream, ok := group[name]
	if !ok {
		return nil, &cloudwatch_types.ResourceNotFoundException{Message: aws.String("The specified log stream does not exist.")}
	}
	if len(params.LogEvents) == 0 || len(params.LogEvents) > 10000 {
		return nil, &cloudwatch_types.InvalidParameterException{Message: aws.String(fmt.Sprintf("invalid number of log events: %d", len(params.LogEvents)))}
	}

	var prev int64
	for i, e := range params.LogEvents {
		ts := aws.ToInt64(e.Timestamp)
		if i > 0 && ts < prev {
			return nil, &cloudwatch_types.InvalidParameterException{Message: aws.String("Log events in a single PutLogEvents request must be in chronological order.")}
		}
		prev = ts
	}

	for _, e := range params.LogEvents {
		stream = append(stream, types.LogRecord{Timestamp: aws.ToInt64(e.Timestamp), Message: aws.ToString(e.Message)})
	}
	group[name] = stream
	return &cloudwatchlogs.PutLogEventsOutput{}, nil
}

// Events returns the records published to a stream, in order
func (c *CloudWatchLogs) Events(logGroup, logStream string) []types.LogRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]types.LogRecord(nil), c.groups[logGroup][logStream]...)
}

// StreamNames returns the names of the streams in a log group
func (c *CloudWatchLogs) StreamNames(logGroup string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res []string
	for name := range c.groups[logGroup] {
		res = append(res, name)
	}
	return res
}
