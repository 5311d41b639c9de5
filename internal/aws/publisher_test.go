package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type mockSQS struct {
	last *sqs.SendMessageInput
	err  error
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.last = in
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestSendJobMessage_Attributes(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.local/queue")

	err := p.SendJobMessage(context.Background(), `{"job_key":"k1"}`, map[string]string{
		"operation":      "createDataStore",
		"job_key":        "k1",
		"correlation_id": "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *mock.last.QueueUrl != "https://sqs.local/queue" {
		t.Fatalf("queue url mismatch: %s", *mock.last.QueueUrl)
	}
	if len(mock.last.MessageAttributes) != 2 {
		t.Fatalf("expected empty attributes to be skipped, got %d", len(mock.last.MessageAttributes))
	}
	if v := mock.last.MessageAttributes["operation"].StringValue; v == nil || *v != "createDataStore" {
		t.Fatalf("operation attribute not set: %+v", mock.last.MessageAttributes["operation"])
	}
}

func TestSendJobMessage_Error(t *testing.T) {
	p := NewPublisher(&mockSQS{err: errors.New("throttled")}, "q")
	if err := p.SendJobMessage(context.Background(), "{}", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSendJobMessage_FIFO(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.local/jobs.fifo")

	err := p.SendJobMessage(context.Background(), "{}", map[string]string{
		AttrJobKey:   "k1",
		AttrRecordID: "s3://b/k.ndjson",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.last.MessageGroupId == nil || *mock.last.MessageGroupId != "s3://b/k.ndjson" {
		t.Fatalf("expected record id as group, got %v", mock.last.MessageGroupId)
	}
	if mock.last.MessageDeduplicationId == nil || *mock.last.MessageDeduplicationId != "k1" {
		t.Fatalf("expected job key as dedup id, got %v", mock.last.MessageDeduplicationId)
	}

	if err := p.SendJobMessage(context.Background(), "{}", nil); err == nil {
		t.Fatalf("expected error without a group attribute")
	}
}

func TestSendJobMessage_StandardQueueHasNoGroup(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.local/jobs")
	if err := p.SendJobMessage(context.Background(), "{}", map[string]string{AttrJobKey: "k1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.last.MessageGroupId != nil || mock.last.MessageDeduplicationId != nil {
		t.Fatalf("standard queue must not set FIFO fields")
	}
}
