package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"contractdesk/internal/config"
	"contractdesk/internal/types"
)

type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg_1")}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/plan-events"

func testEvent() types.PlanEvent {
	return types.PlanEvent{
		ID:             "evt_1",
		Type:           types.PlanEventPublished,
		DraftID:        "d1",
		OrganizationID: "org_1",
		Version:        5,
		OccurredAt:     time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishPlanEvent_SendsBodyAndAttribute(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewPlanEventPublisher(mock, config.AWSConfig{PlanEventsQueue: testQueueURL}, slog.Default())

	if err := pub.PublishPlanEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("PublishPlanEvent: %v", err)
	}
	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 SendMessage call, got %d", len(mock.calls))
	}

	in := mock.calls[0]
	if aws.ToString(in.QueueUrl) != testQueueURL {
		t.Errorf("QueueUrl = %q", aws.ToString(in.QueueUrl))
	}
	if got := aws.ToString(in.MessageAttributes[EventTypeAttribute].StringValue); got != "plan.published" {
		t.Errorf("event_type attribute = %q", got)
	}
	if in.MessageGroupId != nil {
		t.Error("standard queue must not set MessageGroupId")
	}

	var decoded types.PlanEvent
	if err := json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if decoded.DraftID != "d1" || decoded.Version != 5 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPublishPlanEvent_FIFOQueue(t *testing.T) {
	mock := &mockSQSSender{}
	pub := NewPlanEventPublisher(mock, config.AWSConfig{PlanEventsQueue: testQueueURL + ".fifo"}, nil)

	if err := pub.PublishPlanEvent(context.Background(), testEvent()); err != nil {
		t.Fatalf("PublishPlanEvent: %v", err)
	}

	in := mock.calls[0]
	if aws.ToString(in.MessageGroupId) != "d1" {
		t.Errorf("MessageGroupId = %q", aws.ToString(in.MessageGroupId))
	}
	if aws.ToString(in.MessageDeduplicationId) != "evt_1" {
		t.Errorf("MessageDeduplicationId = %q", aws.ToString(in.MessageDeduplicationId))
	}
}

func TestPublishPlanEvent_SendError(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("throttled")}
	pub := NewPlanEventPublisher(mock, config.AWSConfig{PlanEventsQueue: testQueueURL}, nil)

	err := pub.PublishPlanEvent(context.Background(), testEvent())

	if err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Errorf("expected wrapped SQS error, got %v", err)
	}
}

func TestLogPublisher(t *testing.T) {
	if err := (LogPublisher{}).PublishPlanEvent(context.Background(), testEvent()); err != nil {
		t.Errorf("LogPublisher returned %v", err)
	}
}

func TestDecodePlanEvent(t *testing.T) {
	body, _ := json.Marshal(testEvent())

	event, err := DecodePlanEvent(string(body))
	if err != nil {
		t.Fatalf("DecodePlanEvent: %v", err)
	}
	if event.Type != types.PlanEventPublished {
		t.Errorf("Type = %q", event.Type)
	}

	if _, err := DecodePlanEvent("not json"); err == nil {
		t.Error("expected error for malformed body")
	}
	if _, err := DecodePlanEvent(`{"id":"evt_2","type":"plan.published"}`); err == nil {
		t.Error("expected error for event without draft")
	}
}
