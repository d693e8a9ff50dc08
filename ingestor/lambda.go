package ingestor

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/baldanca/subgraph-ingestor/source"
)

// LambdaHandler adapts a BatchHandler to SQS-triggered invocations.
type LambdaHandler struct {
	handler            BatchHandler
	reportItemFailures bool
}

type LambdaOption func(*LambdaHandler)

// WithBatchItemFailures reports failed messages in the response instead of
// failing the invocation. The event source mapping must enable
// ReportBatchItemFailures.
func WithBatchItemFailures() LambdaOption {
	return func(l *LambdaHandler) { l.reportItemFailures = true }
}

func NewLambdaHandler(handler BatchHandler, opts ...LambdaOption) *LambdaHandler {
	if handler == nil {
		panic("handler is required")
	}
	l := &LambdaHandler{handler: handler}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Handle processes the event. Without batch item failures any failed message
// fails the whole invocation, after the successful ones were deleted.
func (l *LambdaHandler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	_, err := l.handler.HandleBatch(ctx, source.FromLambdaEvent(ev))
	if err == nil {
		return events.SQSEventResponse{}, nil
	}
	if !l.reportItemFailures {
		return events.SQSEventResponse{}, err
	}

	var berr *BatchError
	if !errors.As(err, &berr) {
		return events.SQSEventResponse{}, fmt.Errorf("handle batch: %w", err)
	}
	var resp events.SQSEventResponse
	for _, id := range berr.FailedIDs() {
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: id})
	}
	return resp, nil
}
