package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Message is one queue item.
//
// Source identifies the queue the message came from. In Lambda mode it is the
// event source ARN; in poll mode it is the queue URL. Acker.ResolveEndpoint
// turns either form into the address used for acknowledgement.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
	Source        string
	Attributes    map[string]string
}

// Acker removes successfully processed messages from their queue.
type Acker interface {
	ResolveEndpoint(ctx context.Context, source string) (string, error)
	Delete(ctx context.Context, endpoint string, msg Message) error
	// DeleteBatch deletes msgs from endpoint. When only some entries fail it
	// returns a *PartialAckError naming them.
	DeleteBatch(ctx context.Context, endpoint string, msgs []Message) error
}

// VisibilityChanger can shorten or extend how long a received message stays
// hidden from other consumers.
type VisibilityChanger interface {
	ChangeVisibility(ctx context.Context, endpoint string, msg Message, timeoutSeconds int32) error
}

// AckFailure is one entry the queue refused to delete.
type AckFailure struct {
	ID      string
	Code    string
	Message string
}

// PartialAckError reports the entries of a batch delete that failed. Entries
// not listed were deleted.
type PartialAckError struct {
	Failed []AckFailure
}

func (e *PartialAckError) Error() string {
	if len(e.Failed) == 0 {
		return "sqs delete failed"
	}
	f := e.Failed[0]
	return fmt.Sprintf("sqs delete failed for %d entries, first id=%s code=%s message=%s",
		len(e.Failed), f.ID, f.Code, f.Message)
}

// FailedIDs returns the message ids that were not deleted.
func (e *PartialAckError) FailedIDs() map[string]AckFailure {
	out := make(map[string]AckFailure, len(e.Failed))
	for _, f := range e.Failed {
		out[f.ID] = f
	}
	return out
}

// permanentAckCodes are entry errors that repeating the delete cannot fix.
var permanentAckCodes = map[string]bool{
	"ReceiptHandleIsInvalid": true,
	"InvalidIdFormat":        true,
}

// RetryableAck reports whether repeating a failed delete may succeed. A
// partial failure is permanent only when every refused entry is.
func RetryableAck(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *PartialAckError
	if !errors.As(err, &pe) {
		return true
	}
	for _, f := range pe.Failed {
		if !permanentAckCodes[f.Code] {
			return true
		}
	}
	return false
}

// AckGroup accumulates messages bound for the same endpoint so they can be
// deleted together.
type AckGroup struct {
	endpoint string
	msgs     []Message
}

func NewAckGroup(endpoint string, capacity int) *AckGroup {
	return &AckGroup{endpoint: endpoint, msgs: make([]Message, 0, capacity)}
}

func (g *AckGroup) Endpoint() string { return g.endpoint }

func (g *AckGroup) Len() int { return len(g.msgs) }

// Add appends a message to the group.
func (g *AckGroup) Add(m Message) {
	g.msgs = append(g.msgs, m)
}

// Messages returns a copy of the pending messages.
func (g *AckGroup) Messages() []Message {
	if len(g.msgs) == 0 {
		return nil
	}
	cp := make([]Message, len(g.msgs))
	copy(cp, g.msgs)
	return cp
}

// Commit deletes the group against a.
func (g *AckGroup) Commit(ctx context.Context, a Acker) error {
	if len(g.msgs) == 0 {
		return nil
	}
	return a.DeleteBatch(ctx, g.endpoint, g.msgs)
}

// Clear resets the group and releases references to message bodies.
func (g *AckGroup) Clear() {
	for i := range g.msgs {
		g.msgs[i] = Message{}
	}
	g.msgs = g.msgs[:0]
}

// FromLambdaEvent converts the records of an SQS-triggered invocation.
func FromLambdaEvent(ev events.SQSEvent) []Message {
	out := make([]Message, 0, len(ev.Records))
	for _, r := range ev.Records {
		out = append(out, Message{
			ID:            r.MessageId,
			Body:          r.Body,
			ReceiptHandle: r.ReceiptHandle,
			Source:        r.EventSourceARN,
			Attributes:    lambdaAttributes(r),
		})
	}
	return out
}

func lambdaAttributes(r events.SQSMessage) map[string]string {
	if len(r.Attributes) == 0 && len(r.MessageAttributes) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Attributes)+len(r.MessageAttributes))
	for k, v := range r.Attributes {
		out[k] = v
	}
	for k, v := range r.MessageAttributes {
		if v.StringValue != nil {
			out[k] = *v.StringValue
		}
	}
	return out
}

// QueueARN is the parsed form of arn:aws:sqs:region:account:name.
type QueueARN struct {
	Region    string
	AccountID string
	Name      string
}

func ParseQueueARN(arn string) (QueueARN, error) {
	parts := strings.Split(arn, ":")
	if len(parts) != 6 || parts[0] != "arn" || parts[2] != "sqs" {
		return QueueARN{}, fmt.Errorf("not an sqs queue arn: %q", arn)
	}
	if parts[5] == "" {
		return QueueARN{}, fmt.Errorf("arn has no queue name: %q", arn)
	}
	return QueueARN{Region: parts[3], AccountID: parts[4], Name: parts[5]}, nil
}
