package aws

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Attribute keys the publisher reads for FIFO ordering and de-duplication.
const (
	AttrJobKey   = "job_key"
	AttrRecordID = "record_id"
)

// Publisher sends lifecycle jobs to the worker queue.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
	fifo     bool
}

func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// SendJobMessage enqueues one JSON job body. Non-empty attributes become
// String message attributes. On a FIFO queue, jobs for the same record share a
// message group so they run one after another, and the job key de-duplicates.
func (p *Publisher) SendJobMessage(ctx context.Context, messageBody string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:          &p.QueueURL,
		MessageBody:       &messageBody,
		MessageAttributes: messageAttributes(attributes),
	}
	if p.fifo {
		group := attributes[AttrRecordID]
		if group == "" {
			group = attributes[AttrJobKey]
		}
		if group == "" {
			return fmt.Errorf("fifo queue needs a %s or %s attribute", AttrRecordID, AttrJobKey)
		}
		input.MessageGroupId = awsString(group)
		if key := attributes[AttrJobKey]; key != "" {
			input.MessageDeduplicationId = awsString(key)
		}
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func messageAttributes(attributes map[string]string) map[string]sqstypes.MessageAttributeValue {
	keys := make([]string, 0, len(attributes))
	for k, v := range attributes {
		if v != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	out := make(map[string]sqstypes.MessageAttributeValue, len(keys))
	for _, k := range keys {
		out[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(attributes[k]),
		}
	}
	return out
}

func awsString(s string) *string { return &s }
