package sink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	err  error
}

func (p *fakePublisher) PublishMsg(m *nats.Msg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, m)
	return nil
}

var _ Publisher = (*fakePublisher)(nil)

func TestNATS_PublishesCanonicalJSONWithDigestID(t *testing.T) {
	p := &fakePublisher{}
	s := NewNATS(p, "graph.fragments")
	g := testFragment(t, 1234, 5)

	if err := s.Publish(context.Background(), g); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(p.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(p.msgs))
	}
	m := p.msgs[0]
	want, _ := g.MarshalJSON()
	digest, _ := g.Digest()
	if m.Subject != "graph.fragments" {
		t.Fatalf("subject=%q", m.Subject)
	}
	if string(m.Data) != string(want) {
		t.Fatalf("data=%s", m.Data)
	}
	if m.Header.Get(nats.MsgIdHdr) != digest {
		t.Fatalf("msg id=%q want=%q", m.Header.Get(nats.MsgIdHdr), digest)
	}
	if m.Header.Get(TimestampHeader) != "1234" {
		t.Fatalf("timestamp header=%q", m.Header.Get(TimestampHeader))
	}
}

func TestNATS_ErrorsAndCanceledContext(t *testing.T) {
	boom := errors.New("boom")
	s := NewNATS(&fakePublisher{err: boom}, "s")
	if err := s.Publish(context.Background(), testFragment(t, 1, 1)); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	p := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewNATS(p, "s").Publish(ctx, testFragment(t, 1, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(p.msgs) != 0 {
		t.Fatalf("nothing should be published")
	}
}

func TestNewNATS_Panics(t *testing.T) {
	for name, fn := range map[string]func(){
		"nil publisher": func() { NewNATS(nil, "s") },
		"empty subject": func() { NewNATS(&fakePublisher{}, "") },
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			fn()
		})
	}
}
