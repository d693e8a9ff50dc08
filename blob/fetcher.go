package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/baldanca/subgraph-ingestor/envelope"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrUnreadable = errors.New("blob unreadable")
)

// FetchError is returned when an object could not be retrieved. It wraps
// either ErrNotFound or ErrUnreadable together with the underlying cause.
type FetchError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch s3://%s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// S3API is the subset of the S3 client used for reads.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Retrier runs fn until it succeeds or gives up. ingestor.SimpleRetry
// satisfies it.
type Retrier interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type onceRetry struct{}

func (onceRetry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

type FetcherOption func(*Fetcher)

// WithRetry retries unreadable fetches. Missing objects are never retried.
func WithRetry(r Retrier) FetcherOption {
	return func(f *Fetcher) {
		if r != nil {
			f.retry = r
		}
	}
}

// WithMaxBytes caps the size of a fetched object. Larger objects are
// unreadable.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) { f.maxBytes = n }
}

// Fetcher reads whole objects from S3.
type Fetcher struct {
	client   S3API
	retry    Retrier
	maxBytes int64
}

func NewFetcher(client S3API, opts ...FetcherOption) *Fetcher {
	if client == nil {
		panic("s3 client is required")
	}
	f := &Fetcher{client: client, retry: onceRetry{}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the raw bytes stored at loc.
func (f *Fetcher) Fetch(ctx context.Context, loc envelope.Location) ([]byte, error) {
	var (
		out      []byte
		notFound error
	)
	err := f.retry.Do(ctx, func(ctx context.Context) error {
		b, err := f.get(ctx, loc)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				notFound = err
				return nil
			}
			return err
		}
		out = b
		return nil
	})
	if notFound != nil {
		return nil, notFound
	}
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &FetchError{Bucket: loc.Bucket, Key: loc.Key, Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
	}
	return out, nil
}

func (f *Fetcher) get(ctx context.Context, loc envelope.Location) ([]byte, error) {
	bucket, key := loc.Bucket, loc.Key
	resp, err := f.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return nil, &FetchError{Bucket: loc.Bucket, Key: loc.Key, Err: fmt.Errorf("%w: %w", classify(err), err)}
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if f.maxBytes > 0 {
		r = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, &FetchError{Bucket: loc.Bucket, Key: loc.Key, Err: fmt.Errorf("%w: read body: %w", ErrUnreadable, err)}
	}
	if f.maxBytes > 0 && int64(len(b)) > f.maxBytes {
		return nil, &FetchError{Bucket: loc.Bucket, Key: loc.Key, Err: fmt.Errorf("%w: object exceeds %d bytes", ErrUnreadable, f.maxBytes)}
	}
	return b, nil
}

func classify(err error) error {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return ErrNotFound
	}
	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return ErrNotFound
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return ErrNotFound
		}
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrUnreadable
}
