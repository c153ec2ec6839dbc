// Package queue publishes plan lifecycle events to SQS for the billing
// sync worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"contractdesk/internal/config"
	"contractdesk/internal/types"
)

// EventTypeAttribute is the SQS message attribute carrying the event type,
// so subscribers can filter without decoding the body.
const EventTypeAttribute = "event_type"

// SQSSender abstracts SendMessage so tests can stand in for *sqs.Client.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// PlanEventPublisher sends PlanEvents to the plan-events queue.
type PlanEventPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewPlanEventPublisher creates a publisher for the queue named in awsCfg.
func NewPlanEventPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *PlanEventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanEventPublisher{
		client:   client,
		queueURL: awsCfg.PlanEventsQueue,
		logger:   logger,
	}
}

// PublishPlanEvent serializes event and sends it. The event ID is passed as
// the deduplication ID when the queue is FIFO.
func (p *PlanEventPublisher) PublishPlanEvent(ctx context.Context, event types.PlanEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal plan event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			EventTypeAttribute: {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Type)),
			},
		},
	}
	if isFIFO(p.queueURL) {
		input.MessageGroupId = aws.String(event.DraftID)
		input.MessageDeduplicationId = aws.String(event.ID)
	}

	out, err := p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("queue: failed to send plan event to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "plan event sent",
		"event_id", event.ID,
		"event_type", string(event.Type),
		"draft_id", event.DraftID,
		"version", event.Version,
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}

func isFIFO(queueURL string) bool {
	return strings.HasSuffix(queueURL, ".fifo")
}

// LogPublisher stands in for SQS in local development. Events are logged
// and dropped.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) PublishPlanEvent(ctx context.Context, event types.PlanEvent) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "plan event (not queued)",
		"event_id", event.ID,
		"event_type", string(event.Type),
		"draft_id", event.DraftID,
		"version", event.Version,
	)
	return nil
}

// DecodePlanEvent parses a message body produced by PlanEventPublisher.
func DecodePlanEvent(body string) (types.PlanEvent, error) {
	var event types.PlanEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return types.PlanEvent{}, fmt.Errorf("queue: malformed plan event: %w", err)
	}
	if event.DraftID == "" || event.OrganizationID == "" || event.Type == "" {
		return types.PlanEvent{}, fmt.Errorf("queue: plan event %q is missing draft, organization or type", event.ID)
	}
	return event, nil
}
