package sink

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer puts objects into one bucket under an optional prefix.
type S3Writer struct {
	client s3API

	bucket    string
	bucketPtr *string
	prefix    string
}

func NewS3Writer(client s3API, bucket, prefix string) *S3Writer {
	if client == nil {
		panic("s3 client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		panic("bucket is required")
	}

	s := &S3Writer{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
	s.bucketPtr = &s.bucket
	return s
}

// Key returns the object key req is stored under. Keys are not path-cleaned.
func (s *S3Writer) Key(req WriteRequest) string {
	key := strings.TrimLeft(req.Key, "/")
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key
}

func (s *S3Writer) Write(ctx context.Context, req WriteRequest) error {
	if req.Key == "" {
		return fmt.Errorf("empty key")
	}
	key := s.Key(req)
	size := int64(len(req.Data))

	input := s3.PutObjectInput{
		Bucket:        s.bucketPtr,
		Key:           &key,
		Body:          bytes.NewReader(req.Data),
		ContentLength: &size,
	}
	if req.ContentType != "" {
		input.ContentType = &req.ContentType
	}
	if len(req.Metadata) > 0 {
		input.Metadata = req.Metadata
	}

	if _, err := s.client.PutObject(ctx, &input); err != nil {
		return fmt.Errorf("put fragment object bucket=%q key=%q: %w", s.bucket, key, err)
	}
	return nil
}

var _ Writer = (*S3Writer)(nil)
