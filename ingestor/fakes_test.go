package ingestor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/baldanca/subgraph-ingestor/blob"
	"github.com/baldanca/subgraph-ingestor/envelope"
	"github.com/baldanca/subgraph-ingestor/graph"
	"github.com/baldanca/subgraph-ingestor/sink"
	"github.com/baldanca/subgraph-ingestor/source"
	"github.com/baldanca/subgraph-ingestor/transformer"
)

const testSource = "arn:aws:sqs:us-east-1:123456789012:telemetry"

// fakeAcker records deletions. Ids in failOnce fail their first delete;
// ids in failAlways never succeed.
type fakeAcker struct {
	mu sync.Mutex

	resolveCalls map[string]int
	resolveErr   error

	deleted    []string
	batchSizes []int
	failOnce   map[string]bool
	failAlways map[string]bool

	visCalls map[string]int32
}

func newFakeAcker() *fakeAcker {
	return &fakeAcker{
		resolveCalls: make(map[string]int),
		failOnce:     make(map[string]bool),
		failAlways:   make(map[string]bool),
		visCalls:     make(map[string]int32),
	}
}

func (a *fakeAcker) ResolveEndpoint(ctx context.Context, src string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resolveCalls[src]++
	if a.resolveErr != nil {
		return "", a.resolveErr
	}
	return "https://sqs.example/" + src, nil
}

func (a *fakeAcker) shouldFail(id string) bool {
	if a.failAlways[id] {
		return true
	}
	if a.failOnce[id] {
		delete(a.failOnce, id)
		return true
	}
	return false
}

func (a *fakeAcker) Delete(ctx context.Context, endpoint string, msg source.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shouldFail(msg.ID) {
		return fmt.Errorf("delete %s refused", msg.ID)
	}
	a.deleted = append(a.deleted, msg.ID)
	return nil
}

func (a *fakeAcker) DeleteBatch(ctx context.Context, endpoint string, msgs []source.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batchSizes = append(a.batchSizes, len(msgs))
	var failed []source.AckFailure
	for _, m := range msgs {
		if a.shouldFail(m.ID) {
			failed = append(failed, source.AckFailure{ID: m.ID, Code: "ReceiptHandleIsInvalid", Message: "nope"})
			continue
		}
		a.deleted = append(a.deleted, m.ID)
	}
	if len(failed) > 0 {
		return &source.PartialAckError{Failed: failed}
	}
	return nil
}

func (a *fakeAcker) ChangeVisibility(ctx context.Context, endpoint string, msg source.Message, timeoutSeconds int32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.visCalls[msg.ID] = timeoutSeconds
	return nil
}

func (a *fakeAcker) deletedSet() map[string]bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]bool, len(a.deleted))
	for _, id := range a.deleted {
		out[id] = true
	}
	return out
}

var (
	_ source.Acker             = (*fakeAcker)(nil)
	_ source.VisibilityChanger = (*fakeAcker)(nil)
)

// fakeBlobS3 serves objects for the blob fetcher.
type fakeBlobS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    []string
}

func (f *fakeBlobS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.mu.Lock()
	f.gets = append(f.gets, key)
	b, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeBlobS3) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gets)
}

var _ blob.S3API = (*fakeBlobS3)(nil)

type recordingSink struct {
	mu  sync.Mutex
	got []*graph.Graph
}

func (s *recordingSink) Publish(ctx context.Context, g *graph.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, g)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

var _ sink.Sink = (*recordingSink)(nil)

var errTranslate = errors.New("translate refused")

// testTranslator fails for path "fail" and panics for path "panic".
var testTranslator = transformer.TranslatorFunc[transformer.FileDelete](
	func(ctx context.Context, ev transformer.FileDelete) (*graph.Graph, error) {
		switch ev.Path {
		case "fail":
			return nil, errTranslate
		case "panic":
			panic("translator exploded")
		}
		return transformer.TranslateFileDelete(ctx, ev)
	})

func fileDeleteJSON(t testing.TB, pid uint64, path string) []byte {
	t.Helper()
	b, err := json.Marshal(transformer.FileDelete{
		DeleterProcessID: pid,
		Path:             path,
		Hostname:         "web-1",
		Timestamp:        1000,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// inlineMessage carries a file delete event base64-encoded in the body.
func inlineMessage(t testing.TB, id string, pid uint64, path string) source.Message {
	return source.Message{
		ID:            id,
		Body:          base64.StdEncoding.EncodeToString(fileDeleteJSON(t, pid, path)),
		ReceiptHandle: "rh-" + id,
		Source:        testSource,
	}
}

func s3EventBody(bucket string, keys ...string) string {
	type object struct {
		Key string `json:"key"`
	}
	type record struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object object `json:"object"`
		} `json:"s3"`
	}
	var ev struct {
		Records []record `json:"Records"`
	}
	for _, k := range keys {
		var r record
		r.S3.Bucket.Name = bucket
		r.S3.Object.Key = k
		ev.Records = append(ev.Records, r)
	}
	b, _ := json.Marshal(ev)
	return string(b)
}

type testHarness struct {
	harness *Harness[transformer.FileDelete]
	acker   *fakeAcker
	blobs   *fakeBlobS3
	sink    *recordingSink
}

func newTestHarness(t testing.TB, opts ...CollectorOption) *testHarness {
	t.Helper()

	blobs := &fakeBlobS3{objects: make(map[string][]byte)}
	loader := blob.NewLoader(blob.NewFetcher(blobs), blob.CompressionNone)
	rec := &recordingSink{}

	d, err := NewDispatcher[transformer.FileDelete](
		envelope.NewResolver(),
		loader,
		JSONDecoder[transformer.FileDelete](),
		testTranslator,
		rec,
	)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	acker := newFakeAcker()
	h, err := NewHarness(d, NewCollector(acker, opts...), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHarness: %v", err)
	}
	return &testHarness{harness: h, acker: acker, blobs: blobs, sink: rec}
}
