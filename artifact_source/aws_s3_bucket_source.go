package artifact_source

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/turbot/tailpipe-elb-log-forwarder/connection"
	"github.com/turbot/tailpipe-elb-log-forwarder/logging"
	"github.com/turbot/tailpipe-elb-log-forwarder/types"
)

// S3API is the subset of the S3 client used by [AwsS3BucketSource]
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// AwsS3BucketSource reads gzip compressed artifacts from S3
type AwsS3BucketSource struct {
	client S3API
}

func NewAwsS3BucketSource(client S3API) *AwsS3BucketSource {
	return &AwsS3BucketSource{client: client}
}

// NewS3Client builds the S3 client for the source. Retries are disabled so that
// throttling surfaces to the caller on the first occurrence.
func NewS3Client(cfg *aws.Config, conn *connection.AwsConnection) *s3.Client {
	return s3.NewFromConfig(*cfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 1
		o.UsePathStyle = conn.UsePathStyle()
	})
}

// Open fetches the referenced object and returns a reader over its decompressed content.
// The content is streamed - nothing is buffered beyond what gzip needs.
// The caller must close the returned reader.
func (s *AwsS3BucketSource) Open(ctx context.Context, ref types.TriggerReference) (io.ReadCloser, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		fetchErr := newFetchError(ref.Bucket, ref.Key, err)
		logging.FromContext(ctx).Error("Failed to fetch artifact", "bucket", ref.Bucket, "key", ref.Key, "code", fetchErr.Code, "throttled", fetchErr.Throttled(), "error", err)
		return nil, fetchErr
	}

	gzReader, err := gzip.NewReader(output.Body)
	if err != nil {
		output.Body.Close()
		return nil, newFetchError(ref.Bucket, ref.Key, fmt.Errorf("error creating gzip reader, %w", err))
	}

	logging.FromContext(ctx).Debug("Opened artifact", "bucket", ref.Bucket, "key", ref.Key, "content_length", aws.ToInt64(output.ContentLength))

	return &gzipObjectReader{Reader: gzReader, body: output.Body}, nil
}

// gzipObjectReader closes both the gzip reader and the underlying object body
type gzipObjectReader struct {
	*gzip.Reader
	body io.ReadCloser
}

func (r *gzipObjectReader) Close() error {
	gzErr := r.Reader.Close()
	bodyErr := r.body.Close()
	if gzErr != nil {
		return gzErr
	}
	return bodyErr
}
