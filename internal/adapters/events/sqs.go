package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"foreman/internal/domain"
	"foreman/internal/ports"
)

// SQSAPI is the part of *sqs.Client the publisher uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

var _ ports.EventPublisher = (*SQSPublisher)(nil)

// SQSPublisher sends one message per event. FIFO queues (".fifo" URLs) get
// the service ID as message group, which keeps a service's events ordered,
// and the event ID as deduplication ID.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
	fifo     bool
}

func NewSQSPublisher(client SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

func (p *SQSPublisher) Publish(ctx context.Context, event domain.JobEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Type)),
			},
			"service_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.ServiceID),
			},
		},
	}
	if p.fifo {
		input.MessageGroupId = aws.String(event.ServiceID)
		input.MessageDeduplicationId = aws.String(event.ID)
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("events: send message to sqs: %w", err)
	}
	return nil
}

func (p *SQSPublisher) Close() error { return nil }
