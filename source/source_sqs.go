package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
)

// maxBatch is the SQS limit for batch delete and visibility calls.
const maxBatch = 10

type SourceSQSConfig struct {
	WaitTimeSeconds int32
	MaxMessages     int32
	VisibilityTO    int32

	FailVisibilityTimeoutSeconds *int32
}

func (c *SourceSQSConfig) validate() {
	if c.WaitTimeSeconds < 0 || c.WaitTimeSeconds > 20 {
		panic("wait time seconds must be between 0 and 20")
	}
	if c.MaxMessages < 1 || c.MaxMessages > 10 {
		panic("max messages must be between 1 and 10")
	}
	if c.VisibilityTO < 0 {
		panic("visibility timeout must be non-negative")
	}
	if c.FailVisibilityTimeoutSeconds != nil && *c.FailVisibilityTimeoutSeconds < 0 {
		panic("fail visibility timeout seconds must be non-negative")
	}
}

var DefaultSourceSQSConfig = SourceSQSConfig{
	WaitTimeSeconds: 20,
	MaxMessages:     10,
	VisibilityTO:    30,
}

// SQSAPI is the subset of the SQS client used for receiving and
// acknowledging.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	ChangeMessageVisibilityBatch(ctx context.Context, params *sqs.ChangeMessageVisibilityBatchInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityBatchOutput, error)
}

// SourceSQS receives batches from one queue.
type SourceSQS struct {
	cfg SourceSQSConfig

	client      SQSAPI
	queueURL    string
	queueURLPtr *string
}

func NewWithConfig(client SQSAPI, queueURL string, cfg SourceSQSConfig) *SourceSQS {
	if client == nil {
		panic("sqs client is required")
	}
	if queueURL == "" {
		panic("queue url is required")
	}
	cfg.validate()

	s := &SourceSQS{
		cfg:      cfg,
		client:   client,
		queueURL: queueURL,
	}
	s.queueURLPtr = &s.queueURL
	return s
}

func (s *SourceSQS) QueueURL() string { return s.queueURL }

func (s *SourceSQS) Config() SourceSQSConfig { return s.cfg }

// ReceiveBatch long-polls once and returns what arrived, possibly nothing.
func (s *SourceSQS) ReceiveBatch(ctx context.Context) ([]Message, error) {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.WaitTimeSeconds+5)*time.Second)
	defer cancel()

	out, err := s.client.ReceiveMessage(reqCtx, &sqs.ReceiveMessageInput{
		QueueUrl:                    s.queueURLPtr,
		MaxNumberOfMessages:         s.cfg.MaxMessages,
		WaitTimeSeconds:             s.cfg.WaitTimeSeconds,
		VisibilityTimeout:           s.cfg.VisibilityTO,
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameAll},
	})
	if err != nil {
		return nil, fmt.Errorf("receive sqs messages queue=%q: %w", s.queueURL, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for i := range out.Messages {
		msgs = append(msgs, s.convert(&out.Messages[i]))
	}
	return msgs, nil
}

func (s *SourceSQS) convert(m *sqstypes.Message) Message {
	id := aws.ToString(m.MessageId)
	if id == "" {
		// Ack failures are matched back to messages by ID.
		id = "local-" + uuid.NewString()
	}
	var attrs map[string]string
	if len(m.Attributes) > 0 || len(m.MessageAttributes) > 0 {
		attrs = make(map[string]string, len(m.Attributes)+len(m.MessageAttributes))
		for k, v := range m.Attributes {
			attrs[k] = v
		}
		for k, v := range m.MessageAttributes {
			if v.StringValue != nil {
				attrs[k] = *v.StringValue
			}
		}
	}
	return Message{
		ID:            id,
		Body:          aws.ToString(m.Body),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
		Source:        s.queueURL,
		Attributes:    attrs,
	}
}

// ExtendVisibilityBatch keeps msgs hidden for another timeoutSeconds while they
// are still being processed.
func (s *SourceSQS) ExtendVisibilityBatch(ctx context.Context, msgs []Message, timeoutSeconds int32) error {
	if len(msgs) == 0 {
		return nil
	}

	in := sqs.ChangeMessageVisibilityBatchInput{QueueUrl: s.queueURLPtr}
	entries := make([]sqstypes.ChangeMessageVisibilityBatchRequestEntry, 0, maxBatch)

	for i := 0; i < len(msgs); i += maxBatch {
		end := min(i+maxBatch, len(msgs))

		entries = entries[:0]
		var ids [maxBatch]string
		var rhs [maxBatch]string

		for j := i; j < end; j++ {
			k := j - i
			ids[k] = strconv.Itoa(k)
			rhs[k] = msgs[j].ReceiptHandle

			entries = append(entries, sqstypes.ChangeMessageVisibilityBatchRequestEntry{
				Id:                &ids[k],
				ReceiptHandle:     &rhs[k],
				VisibilityTimeout: timeoutSeconds,
			})
		}

		in.Entries = entries
		out, err := s.client.ChangeMessageVisibilityBatch(ctx, &in)
		if err != nil {
			return err
		}
		if len(out.Failed) > 0 {
			f := out.Failed[0]
			return fmt.Errorf("sqs visibility batch failed id=%s code=%s message=%s",
				aws.ToString(f.Id), aws.ToString(f.Code), aws.ToString(f.Message))
		}
	}

	return nil
}

// SQSAcker deletes messages and changes their visibility. Endpoints are queue
// URLs; a source given as a queue ARN is resolved with GetQueueUrl.
type SQSAcker struct {
	client SQSAPI
}

func NewSQSAcker(client SQSAPI) *SQSAcker {
	if client == nil {
		panic("sqs client is required")
	}
	return &SQSAcker{client: client}
}

var (
	_ Acker             = (*SQSAcker)(nil)
	_ VisibilityChanger = (*SQSAcker)(nil)
)

// ResolveEndpoint returns the queue URL for source. URLs are returned as is.
func (a *SQSAcker) ResolveEndpoint(ctx context.Context, source string) (string, error) {
	if strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "http://") {
		return source, nil
	}
	arn, err := ParseQueueARN(source)
	if err != nil {
		return "", err
	}
	in := &sqs.GetQueueUrlInput{QueueName: &arn.Name}
	if arn.AccountID != "" {
		in.QueueOwnerAWSAccountId = &arn.AccountID
	}
	out, err := a.client.GetQueueUrl(ctx, in)
	if err != nil {
		return "", fmt.Errorf("get queue url name=%q: %w", arn.Name, err)
	}
	url := aws.ToString(out.QueueUrl)
	if url == "" {
		return "", fmt.Errorf("get queue url name=%q: empty url", arn.Name)
	}
	return url, nil
}

func (a *SQSAcker) Delete(ctx context.Context, endpoint string, msg Message) error {
	if msg.ReceiptHandle == "" {
		return fmt.Errorf("delete message id=%s: empty receipt handle", msg.ID)
	}
	_, err := a.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &endpoint,
		ReceiptHandle: &msg.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("delete message id=%s: %w", msg.ID, err)
	}
	return nil
}

// DeleteBatch deletes msgs in chunks of ten. Entry ids are positional so that
// duplicate message ids in one batch cannot collide.
func (a *SQSAcker) DeleteBatch(ctx context.Context, endpoint string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	in := sqs.DeleteMessageBatchInput{QueueUrl: &endpoint}
	entries := make([]sqstypes.DeleteMessageBatchRequestEntry, 0, maxBatch)
	var failed []AckFailure

	for i := 0; i < len(msgs); i += maxBatch {
		end := min(i+maxBatch, len(msgs))

		entries = entries[:0]
		var ids [maxBatch]string
		var rhs [maxBatch]string

		for j := i; j < end; j++ {
			k := j - i
			ids[k] = strconv.Itoa(k)
			rhs[k] = msgs[j].ReceiptHandle
			entries = append(entries, sqstypes.DeleteMessageBatchRequestEntry{Id: &ids[k], ReceiptHandle: &rhs[k]})
		}

		in.Entries = entries
		out, err := a.client.DeleteMessageBatch(ctx, &in)
		if err != nil {
			// Entries of earlier chunks are already deleted; report the rest.
			for j := i; j < len(msgs); j++ {
				failed = append(failed, AckFailure{ID: msgs[j].ID, Code: "RequestError", Message: err.Error()})
			}
			return &PartialAckError{Failed: failed}
		}
		for _, f := range out.Failed {
			k, convErr := strconv.Atoi(aws.ToString(f.Id))
			if convErr != nil || k < 0 || i+k >= end {
				return fmt.Errorf("sqs delete returned unknown entry id=%s", aws.ToString(f.Id))
			}
			failed = append(failed, AckFailure{
				ID:      msgs[i+k].ID,
				Code:    aws.ToString(f.Code),
				Message: aws.ToString(f.Message),
			})
		}
	}
	if len(failed) > 0 {
		return &PartialAckError{Failed: failed}
	}
	return nil
}

func (a *SQSAcker) ChangeVisibility(ctx context.Context, endpoint string, msg Message, timeoutSeconds int32) error {
	_, err := a.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &endpoint,
		ReceiptHandle:     &msg.ReceiptHandle,
		VisibilityTimeout: timeoutSeconds,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("change visibility id=%s: %w", msg.ID, err)
	}
	return nil
}
