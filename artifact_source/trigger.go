package artifact_source

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/turbot/tailpipe-elb-log-forwarder/logging"
	"github.com/turbot/tailpipe-elb-log-forwarder/types"
)

var ErrInvalidTrigger = errors.New("invalid trigger")

// NewTriggerReference builds a TriggerReference from the bucket and the key as delivered in
// an S3 notification, where keys are form-encoded ('+' for space, %xx escapes)
func NewTriggerReference(bucket, rawKey string) (types.TriggerReference, error) {
	if bucket == "" {
		return types.TriggerReference{}, fmt.Errorf("%w: bucket name is empty", ErrInvalidTrigger)
	}
	if rawKey == "" {
		return types.TriggerReference{}, fmt.Errorf("%w: object key is empty", ErrInvalidTrigger)
	}

	key, err := url.QueryUnescape(rawKey)
	if err != nil {
		return types.TriggerReference{}, fmt.Errorf("%w: failed to decode object key %q, %w", ErrInvalidTrigger, rawKey, err)
	}
	if key == "" {
		return types.TriggerReference{}, fmt.Errorf("%w: object key %q decodes to an empty key", ErrInvalidTrigger, rawKey)
	}

	return types.TriggerReference{Bucket: bucket, Key: key}, nil
}

// TriggerFromS3Event resolves the object reference of an S3 notification.
// Only the first record is processed.
func TriggerFromS3Event(ctx context.Context, event events.S3Event) (types.TriggerReference, error) {
	if len(event.Records) == 0 {
		return types.TriggerReference{}, fmt.Errorf("%w: event contains no records", ErrInvalidTrigger)
	}
	if len(event.Records) > 1 {
		logging.FromContext(ctx).Warn("S3 event contains multiple records, only the first is processed", "records", len(event.Records))
	}

	record := event.Records[0]
	return NewTriggerReference(record.S3.Bucket.Name, record.S3.Object.Key)
}
