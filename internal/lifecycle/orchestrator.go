// Package lifecycle sequences the datastore create, import and delete
// pipelines and keeps the projection record current at every step.
package lifecycle

import (
	"context"
	"errors"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stevenmeyer142/pintler-va-app/internal/convert"
	"github.com/stevenmeyer142/pintler-va-app/internal/datastores"
	"github.com/stevenmeyer142/pintler-va-app/internal/healthlake"
	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
	"github.com/stevenmeyer142/pintler-va-app/internal/metrics"
	"github.com/stevenmeyer142/pintler-va-app/internal/validation"
)

// Inbound operation names.
const (
	OpCreateDataStore = "createDataStore"
	OpImportFHIR      = "importFHIR"
	OpDeleteDatastore = "deleteDatastore"
	OpJSONToNDJSON    = "jsonToNdjson"
	OpDeleteBucket    = "deleteBucket"
)

// Lake is the datastore control plane as the pipelines use it.
type Lake interface {
	CreateDatastore(ctx context.Context, name string) (string, error)
	PollUntilActive(ctx context.Context, datastoreID string, onTick healthlake.TickFunc) (bool, error)
	StartImportJob(ctx context.Context, in healthlake.ImportJobInput) (string, error)
	PollUntilImportComplete(ctx context.Context, datastoreID, jobID string, onTick healthlake.TickFunc) (string, error)
	DeleteDatastore(ctx context.Context, datastoreID string) (string, error)
	PollUntilDeleted(ctx context.Context, datastoreID string, onTick healthlake.TickFunc) (bool, error)
}

type Objects interface {
	DeleteAllObjectsAndBucket(ctx context.Context, bucket string) error
}

type Converter interface {
	Convert(ctx context.Context, bucket, jsonKey, ndjsonKey string) (convert.Result, error)
}

var (
	_ Lake      = (*healthlake.Client)(nil)
	_ Converter = (*convert.Converter)(nil)
)

type Deps struct {
	Records   datastores.Store
	Lake      Lake
	Objects   Objects
	Converter Converter
	Metrics   metrics.Recorder
	Log       *logger.Logger
}

// Settings are deploy-time values the import pipeline needs.
type Settings struct {
	KMSKeyID          string
	DataAccessRoleARN string
}

type Orchestrator struct {
	records   datastores.Store
	lake      Lake
	objects   Objects
	converter Converter
	metrics   metrics.Recorder
	log       *logger.Logger
	settings  Settings
	validate  *validatorv10.Validate
	tracer    trace.Tracer
}

func New(deps Deps, settings Settings) *Orchestrator {
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Orchestrator{
		records:   deps.Records,
		lake:      deps.Lake,
		objects:   deps.Objects,
		converter: deps.Converter,
		metrics:   rec,
		log:       deps.Log.With("component", "LifecycleOrchestrator"),
		settings:  settings,
		validate:  validation.New(),
		tracer:    otel.Tracer("github.com/stevenmeyer142/pintler-va-app/internal/lifecycle"),
	}
}

// begin opens the pipeline span; the returned func records the outcome.
// The returned context ignores the caller's cancellation so status writes,
// failure writes included, still land after the caller stops waiting.
func (o *Orchestrator) begin(ctx context.Context, op, recordID string) (context.Context, func(*Response)) {
	ctx, span := o.tracer.Start(context.WithoutCancel(ctx), spanName(op), trace.WithAttributes(
		attribute.String("lifecycle.operation", op),
		attribute.String("lifecycle.record_id", recordID),
	))
	start := time.Now()
	return ctx, func(resp *Response) {
		elapsed := time.Since(start)
		if resp.Success {
			span.SetStatus(codes.Ok, "")
			o.log.Info("pipeline finished", "op", op, "record_id", recordID, "elapsed", elapsed)
		} else {
			span.SetStatus(codes.Error, resp.Message)
			span.SetAttributes(attribute.String("lifecycle.failure_kind", string(resp.Kind)))
			o.log.Warn("pipeline failed", "op", op, "record_id", recordID, "kind", resp.Kind, "message", resp.Message, "elapsed", elapsed)
		}
		o.metrics.PipelineFinished(ctx, op, resp.Success, elapsed)
		span.End()
	}
}

func spanName(op string) string {
	switch op {
	case OpCreateDataStore:
		return "lifecycle.create"
	case OpImportFHIR:
		return "lifecycle.import"
	case OpDeleteDatastore:
		return "lifecycle.delete"
	case OpDeleteBucket:
		return "lifecycle.delete_bucket"
	default:
		return "lifecycle.convert"
	}
}

// checkRequest runs struct validation and returns a failure Response when it does not pass.
func (o *Orchestrator) checkRequest(req any) (Response, bool) {
	if err := o.validate.Struct(req); err != nil {
		return fail(KindValidation, "%s", validation.Message(err)), false
	}
	return Response{}, true
}

// commit writes a status that gates the next stage; the caller must check the error.
func (o *Orchestrator) commit(ctx context.Context, id string, patch datastores.Patch) error {
	_, err := o.records.Update(ctx, id, patch)
	return err
}

// record writes a failure status on the way out. The pipeline is already
// failing, so a write error is only logged.
func (o *Orchestrator) record(ctx context.Context, id string, patch datastores.Patch) {
	if _, err := o.records.Update(ctx, id, patch); err != nil {
		o.log.Error("status write failed", "record_id", id, "status", statusOf(patch), "err", err)
	}
}

// progress writes a polling update. Only a record that moved elsewhere (or
// vanished) stops the pipeline; other write errors are logged.
func (o *Orchestrator) progress(ctx context.Context, id string, patch datastores.Patch) error {
	_, err := o.records.Update(ctx, id, patch)
	if err == nil {
		return nil
	}
	if superseded(err) {
		return err
	}
	o.log.Warn("progress write failed", "record_id", id, "err", err)
	return nil
}

func superseded(err error) bool {
	return errors.Is(err, datastores.ErrIllegalTransition) || errors.Is(err, datastores.ErrNotFound)
}

// writeFailure maps a failed gating write to a Response.
func writeFailure(id string, err error) Response {
	if superseded(err) {
		return fail(KindConflict, "record %s changed by another operation: %v", id, err)
	}
	return fail(KindUpstream, "error updating HealthLakeDatastore record %s: %v", id, err)
}

func statusOf(p datastores.Patch) string {
	if p.Status == nil {
		return ""
	}
	return string(*p.Status)
}
