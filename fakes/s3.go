package fakes

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/klauspost/compress/gzip"
)

// S3 is an in-memory object store
type S3 struct {
	mu sync.Mutex

	// bucket/key -> content
	objects map[string][]byte

	// GetErr is returned by GetObject when set
	GetErr   error
	GetCalls int
}

func NewS3() *S3 {
	return &S3{objects: make(map[string][]byte)}
}

func (s *S3) Put(bucket, key string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[bucket+"/"+key] = content
}

// PutGzip stores content gzip compressed
func (s *S3) PutGzip(bucket, key string, content string) error {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(content)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	s.Put(bucket, key, buf.Bytes())
	return nil
}

func (s *S3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.GetCalls++
	if s.GetErr != nil {
		return nil, s.GetErr
	}

	content, ok := s.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(content)),
		ContentLength: aws.Int64(int64(len(content))),
	}, nil
}
