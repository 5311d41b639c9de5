package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stevenmeyer142/pintler-va-app/internal/aws"
	"github.com/stevenmeyer142/pintler-va-app/internal/datastores"
	"github.com/stevenmeyer142/pintler-va-app/internal/jobs"
	"github.com/stevenmeyer142/pintler-va-app/internal/lifecycle"
	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
	"github.com/stevenmeyer142/pintler-va-app/internal/validation"
)

// Invoker runs one lifecycle operation to completion.
type Invoker interface {
	Invoke(ctx context.Context, operation string, args json.RawMessage) lifecycle.Response
}

// JobLedger is the subset of jobs.Store the API needs.
type JobLedger interface {
	CreateIfNotExists(ctx context.Context, jobKey, operation, recordID string) (bool, error)
	Get(ctx context.Context, jobKey string) (*jobs.Job, error)
	MarkFailed(ctx context.Context, jobKey, note string) error
}

type JobQueue interface {
	SendJobMessage(ctx context.Context, messageBody string, attributes map[string]string) error
}

var (
	_ JobLedger = (*jobs.Store)(nil)
	_ JobQueue  = (*aws.Publisher)(nil)
)

// HandlerConfig groups dependencies for the datastore routes. Jobs and Queue
// are optional; with both set, operations are queued instead of run inline.
type HandlerConfig struct {
	Lifecycle Invoker
	Records   datastores.Store
	Hub       *datastores.Hub
	Jobs      JobLedger
	Queue     JobQueue
	Log       *logger.Logger

	// Heartbeat is the SSE keep-alive interval; zero uses 15s.
	Heartbeat time.Duration
}

func (cfg HandlerConfig) async() bool {
	return cfg.Jobs != nil && cfg.Queue != nil
}

type handler struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
	log *logger.Logger
}

// RegisterDatastoreRoutes registers the lifecycle, record and job routes.
func RegisterDatastoreRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	h := &handler{cfg: cfg, v: validation.New(), log: cfg.Log.With("component", "DatastoreHandler")}

	r.POST("/datastores", h.operation(lifecycle.OpCreateDataStore, bindArgs[validation.CreateDataStoreRequest]))
	r.POST("/datastores/import", h.operation(lifecycle.OpImportFHIR, bindArgs[validation.ImportFHIRRequest]))
	r.POST("/datastores/delete", h.operation(lifecycle.OpDeleteDatastore, bindArgs[validation.DeleteDatastoreRequest]))
	r.POST("/conversions", h.operation(lifecycle.OpJSONToNDJSON, bindArgs[validation.JSONToNDJSONRequest]))
	r.POST("/buckets/delete", h.operation(lifecycle.OpDeleteBucket, bindArgs[validation.DeleteBucketRequest]))

	r.GET("/datastores", h.list)
	r.GET("/datastores/record", h.get)
	r.GET("/datastores/events", h.events)
	r.GET("/jobs/:key", h.job)
}

type binder func(c *gin.Context, v *validatorv10.Validate) (json.RawMessage, bool)

// bindArgs validates the body as T and re-encodes it as operation arguments.
func bindArgs[T any](c *gin.Context, v *validatorv10.Validate) (json.RawMessage, bool) {
	var req T
	if err := validation.BindAndValidate(c, &req, v); err != nil {
		// BindAndValidate already wrote a 400
		return nil, false
	}
	raw, err := json.Marshal(req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "encode_arguments_failed", "message": err.Error()})
		return nil, false
	}
	return raw, true
}

func (h *handler) operation(op string, bind binder) gin.HandlerFunc {
	return func(c *gin.Context) {
		args, ok := bind(c, h.v)
		if !ok {
			return
		}
		if h.cfg.async() {
			h.enqueue(c, op, args)
			return
		}
		resp := h.cfg.Lifecycle.Invoke(c.Request.Context(), op, args)
		c.JSON(resp.HTTPStatus(), resp)
	}
}

// enqueue records the job and hands it to the worker. A repeated
// Idempotency-Key returns the existing job instead of queueing another.
func (h *handler) enqueue(c *gin.Context, op string, args json.RawMessage) {
	ctx := c.Request.Context()

	jobKey := c.GetHeader("Idempotency-Key")
	if jobKey == "" {
		jobKey = uuid.NewString()
	}
	recordID := lifecycle.RecordID(op, args)

	created, err := h.cfg.Jobs.CreateIfNotExists(ctx, jobKey, op, recordID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "job_create_failed", "message": err.Error()})
		return
	}
	if !created {
		existing, err := h.cfg.Jobs.Get(ctx, jobKey)
		if err != nil || existing == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "job_lookup_failed", "job_key": jobKey})
			return
		}
		if existing.Operation != op {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "idempotency_key_reused", "job_key": jobKey, "operation": existing.Operation})
			return
		}
		h.writeJob(c, existing)
		return
	}

	body, _ := json.Marshal(jobs.Message{
		JobKey:        jobKey,
		Operation:     op,
		Arguments:     args,
		CorrelationID: c.GetHeader("X-Request-Id"),
	})
	attrs := map[string]string{
		aws.AttrJobKey:   jobKey,
		aws.AttrRecordID: recordID,
		"operation":      op,
		"correlation_id": c.GetHeader("X-Request-Id"),
	}
	if err := h.cfg.Queue.SendJobMessage(ctx, string(body), attrs); err != nil {
		// mark failed so the client can retry with a new key
		if merr := h.cfg.Jobs.MarkFailed(ctx, jobKey, fmt.Sprintf("sqs_send_failed: %v", err)); merr != nil {
			h.log.Error("mark job failed", "job_key", jobKey, "err", merr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "enqueue_failed", "message": err.Error()})
		return
	}

	h.log.Info("job queued", "job_key", jobKey, "op", op, "record_id", recordID)
	c.Header("Location", "/jobs/"+jobKey)
	c.JSON(http.StatusAccepted, gin.H{"success": true, "job_key": jobKey, "status": jobs.StatusQueued})
}

func (h *handler) job(c *gin.Context) {
	if h.cfg.Jobs == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "async_jobs_disabled"})
		return
	}
	job, err := h.cfg.Jobs.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "job_lookup_failed", "message": err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "job_not_found"})
		return
	}
	h.writeJob(c, job)
}

// writeJob returns the stored response for a finished job, or 202 while it runs.
func (h *handler) writeJob(c *gin.Context, job *jobs.Job) {
	if job.Status == jobs.StatusDone && job.ResponseBody != "" {
		c.Data(job.ResponseStatus, "application/json", []byte(job.ResponseBody))
		return
	}
	status := http.StatusAccepted
	if job.Status == jobs.StatusFailed {
		status = http.StatusInternalServerError
	}
	c.JSON(status, job)
}

func (h *handler) list(c *gin.Context) {
	records, err := h.cfg.Records.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "list_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "records": records})
}

func (h *handler) get(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing_id"})
		return
	}
	rec, err := h.cfg.Records.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "get_failed", "message": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "record_not_found", "message": "missing HealthLakeDatastore record for id " + id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "record": rec})
}

// events streams the current records, then every change, as server-sent events.
func (h *handler) events(c *gin.Context) {
	if h.cfg.Hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "events_disabled"})
		return
	}
	ctx := c.Request.Context()
	id := c.Query("id")

	records, sub, err := datastores.Watch(ctx, h.cfg.Records, h.cfg.Hub, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "snapshot_failed", "message": err.Error()})
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()

	c.SSEvent("snapshot", records)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			h.log.Debug("event stream closed", "record_id", id, "err", ctx.Err())
			return false
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			return true
		case e, open := <-sub.Events():
			if !open {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		}
	})
}
