package ingestor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/baldanca/subgraph-ingestor/source"
)

// Stage names the step of message handling that failed.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageLoad      Stage = "load"
	StageDecode    Stage = "decode"
	StageTranslate Stage = "translate"
	StageSeal      Stage = "seal"
	StageSink      Stage = "sink"
	StageAck       Stage = "ack"
	StagePanic     Stage = "panic"
)

var (
	ErrUnitPanicked = errors.New("message unit panicked")
	ErrNilFragment  = errors.New("translator returned no fragment")
)

// Outcome is the result of handling every payload of one message.
type Outcome struct {
	Message source.Message
	// Err is nil on success and a *MessageError otherwise.
	Err error
	// Payloads counts payloads that were translated and published.
	Payloads int
}

func (o Outcome) Succeeded() bool { return o.Err == nil }

// MessageError ties a failure to the message and stage it happened in.
type MessageError struct {
	ID    string
	Stage Stage
	Err   error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("message %s: %s: %v", e.ID, e.Stage, e.Err)
}

func (e *MessageError) Unwrap() error { return e.Err }

func newMessageError(id string, stage Stage, err error) *MessageError {
	return &MessageError{ID: id, Stage: stage, Err: err}
}

// BatchError reports that at least one message of a batch was not
// acknowledged. Successful messages of the same batch were acknowledged.
type BatchError struct {
	Total  int
	merr   *multierror.Error
	failed []string
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of %d messages failed: %s", len(e.failed), e.Total, e.merr.Error())
}

// Unwrap exposes every per-message failure to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error { return e.merr.WrappedErrors() }

// Errors returns the per-message failures in the order they were observed.
func (e *BatchError) Errors() []error { return e.merr.WrappedErrors() }

// FailedIDs lists the ids of the messages that were not acknowledged.
func (e *BatchError) FailedIDs() []string { return e.failed }

type batchErrors struct {
	merr   *multierror.Error
	failed []string
}

func (b *batchErrors) add(id string, err error) {
	if b.merr == nil {
		b.merr = &multierror.Error{ErrorFormat: listFormat}
	}
	b.merr = multierror.Append(b.merr, err)
	b.failed = append(b.failed, id)
}

func (b *batchErrors) err(total int) error {
	if b.merr == nil || len(b.merr.Errors) == 0 {
		return nil
	}
	return &BatchError{Total: total, merr: b.merr, failed: b.failed}
}

func listFormat(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
