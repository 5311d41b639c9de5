package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	"github.com/stevenmeyer142/pintler-va-app/internal/jobs"
	"github.com/stevenmeyer142/pintler-va-app/internal/lifecycle"
	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

// Ledger is the subset of jobs.Store the worker drives.
type Ledger interface {
	Get(ctx context.Context, jobKey string) (*jobs.Job, error)
	MarkRunning(ctx context.Context, jobKey string) error
	MarkDone(ctx context.Context, jobKey, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, jobKey, note string) error
}

type Invoker interface {
	Invoke(ctx context.Context, operation string, args json.RawMessage) lifecycle.Response
}

var _ Ledger = (*jobs.Store)(nil)

// Processor runs queued lifecycle jobs and records their outcome.
type Processor struct {
	jobs      Ledger
	lifecycle Invoker
	log       *logger.Logger
}

func NewProcessor(ledger Ledger, lc Invoker, log *logger.Logger) *Processor {
	return &Processor{
		jobs:      ledger,
		lifecycle: lc,
		log:       log.With("component", "JobProcessor"),
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			p.log.Error("worker error", "message_id", rec.MessageId, "err", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg jobs.Message
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.JobKey == "" {
		return fmt.Errorf("message %s has no job_key", rec.MessageId)
	}
	log := p.log.With("job_key", msg.JobKey, "op", msg.Operation, "correlation_id", msg.CorrelationID)
	log.Info("received job")

	job, err := p.jobs.Get(ctx, msg.JobKey)
	if err != nil {
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", msg.JobKey)
	}
	if job.Finished() {
		log.Info("job already finished", "status", job.Status)
		return nil
	}

	if err := p.jobs.MarkRunning(ctx, msg.JobKey); err != nil {
		if errors.Is(err, jobs.ErrConditionFailed) {
			// finished between the read and the write
			log.Info("job finished concurrently")
			return nil
		}
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	if msg.Operation != job.Operation || !json.Valid(msg.Arguments) {
		note := fmt.Sprintf("undecodable job: operation %q, %d argument bytes", msg.Operation, len(msg.Arguments))
		if err := p.jobs.MarkFailed(ctx, msg.JobKey, note); err != nil {
			return fmt.Errorf("failed to mark job failed: %w", err)
		}
		log.Warn("job rejected", "note", note)
		return nil
	}

	resp := p.lifecycle.Invoke(ctx, msg.Operation, msg.Arguments)
	if err := p.jobs.MarkDone(ctx, msg.JobKey, resp.JSON(), resp.HTTPStatus()); err != nil {
		return fmt.Errorf("failed to store job response: %w", err)
	}

	log.Info("job done", "success", resp.Success, "kind", resp.Kind)
	return nil
}
