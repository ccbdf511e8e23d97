package artifact_source

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// SlowDownErrorCode is the error code S3 returns when the request rate is too high
const SlowDownErrorCode = "SlowDown"

// ErrThrottled matches (via errors.Is) any FetchError caused by S3 throttling.
// The source never retries these itself - the invocation is failed so that the
// Lambda retry policy backs off and re-invokes the handler.
var ErrThrottled = errors.New("source store throttled the request")

// FetchError is returned for every failure to fetch an artifact
type FetchError struct {
	Bucket string
	Key    string
	// Code is the AWS error code, empty if the failure was not an API error
	Code string
	Err  error
}

func newFetchError(bucket, key string, err error) *FetchError {
	res := &FetchError{Bucket: bucket, Key: key, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		res.Code = apiErr.ErrorCode()
	}
	return res
}

func (e *FetchError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("failed to fetch s3://%s/%s (%s), %s", e.Bucket, e.Key, e.Code, e.Err)
	}
	return fmt.Sprintf("failed to fetch s3://%s/%s, %s", e.Bucket, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrThrottled && e.Throttled()
}

func (e *FetchError) Throttled() bool {
	return e.Code == SlowDownErrorCode
}
