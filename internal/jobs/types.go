package jobs

import (
	"encoding/json"
	"time"
)

// Job statuses
const (
	StatusQueued  = "QUEUED"
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

// Job is one queued lifecycle invocation, keyed by the client's idempotency key.
type Job struct {
	JobKey         string    `dynamodbav:"job_key" json:"job_key"` // PK
	Operation      string    `dynamodbav:"operation" json:"operation"`
	RecordID       string    `dynamodbav:"record_id,omitempty" json:"record_id,omitempty"`
	Status         string    `dynamodbav:"status" json:"status"` // QUEUED | RUNNING | DONE | FAILED
	ResponseBody   string    `dynamodbav:"response_body,omitempty" json:"response_body,omitempty"`
	ResponseStatus int       `dynamodbav:"response_status,omitempty" json:"response_status,omitempty"`
	Attempts       int       `dynamodbav:"attempts,omitempty" json:"attempts,omitempty"`
	Note           string    `dynamodbav:"note,omitempty" json:"note,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at" json:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at" json:"-"` // TTL epoch seconds
}

func (j *Job) Finished() bool {
	return j.Status == StatusDone || j.Status == StatusFailed
}

// Message is the queue payload the API sends to the worker.
type Message struct {
	JobKey        string          `json:"job_key"`
	Operation     string          `json:"operation"`
	Arguments     json.RawMessage `json:"arguments"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}
