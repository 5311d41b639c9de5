package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stevenmeyer142/pintler-va-app/internal/datastores"
	"github.com/stevenmeyer142/pintler-va-app/internal/healthlake"
	"github.com/stevenmeyer142/pintler-va-app/internal/validation"
)

// ImportFHIR starts a bulk import of the record's staged input and waits for
// the job to finish.
func (o *Orchestrator) ImportFHIR(ctx context.Context, req validation.ImportFHIRRequest) (resp Response) {
	ctx, done := o.begin(ctx, OpImportFHIR, req.ID)
	defer func() { done(&resp) }()

	if r, valid := o.checkRequest(req); !valid {
		return r
	}
	if o.settings.KMSKeyID == "" || o.settings.DataAccessRoleARN == "" {
		return fail(KindValidation, "import requires a KMS key id and a data access role ARN")
	}

	rec, err := o.records.Get(ctx, req.ID)
	if err != nil {
		return fail(KindUpstream, "error loading HealthLakeDatastore record %s: %v", req.ID, err)
	}
	if rec == nil {
		return fail(KindNotFound, "Cannot import: missing HealthLakeDatastore record for id %s", req.ID)
	}
	if missing := missingImportFields(rec); len(missing) > 0 {
		return fail(KindIntegrity, "HealthLakeDatastore record %s is missing %s", req.ID, strings.Join(missing, ", "))
	}
	if rec.Status == datastores.StatusImporting {
		return withDatastore(fail(KindConflict, "import already in progress for record %s", req.ID), rec.DatastoreID)
	}
	if !rec.Status.CanTransitionTo(datastores.StatusImporting) {
		return withDatastore(fail(KindConflict, "record %s is %s; import is not allowed", req.ID, rec.Status), rec.DatastoreID)
	}

	if err := o.commit(ctx, req.ID, datastores.Transition(datastores.StatusImporting, "Starting FHIR import job")); err != nil {
		return writeFailure(req.ID, err)
	}

	jobID, err := o.lake.StartImportJob(ctx, healthlake.ImportJobInput{
		DatastoreID:       rec.DatastoreID,
		InputURI:          rec.S3Input,
		OutputURI:         rec.S3Output,
		KMSKeyID:          o.settings.KMSKeyID,
		DataAccessRoleARN: o.settings.DataAccessRoleARN,
	})
	if err != nil {
		o.record(ctx, req.ID, datastores.Transition(datastores.StatusImportFailed, fmt.Sprintf("Error starting import job: %v", err)))
		return withDatastore(fail(KindUpstream, "error starting import job: %v", err), rec.DatastoreID)
	}

	resp = o.awaitImport(ctx, req.ID, rec.DatastoreID, jobID)
	resp.DataStoreID = rec.DatastoreID
	resp.JobID = jobID
	return resp
}

func (o *Orchestrator) awaitImport(ctx context.Context, id, datastoreID, jobID string) Response {
	if err := o.progress(ctx, id, datastores.Transition(datastores.StatusImporting,
		fmt.Sprintf("Import job %s submitted", jobID))); err != nil {
		return writeFailure(id, err)
	}

	var last healthlake.Tick
	status, err := o.lake.PollUntilImportComplete(ctx, datastoreID, jobID, func(ctx context.Context, t healthlake.Tick) error {
		last = t
		return o.progress(ctx, id, datastores.Transition(datastores.StatusImporting,
			fmt.Sprintf("Import job %s status %s (check %d)", jobID, t.Status, t.Iteration)))
	})
	o.metrics.PollIterations(ctx, OpImportFHIR, last.Iteration)

	if err != nil {
		if errors.Is(err, healthlake.ErrPollAborted) {
			return fail(KindConflict, "record %s changed while waiting for import job %s: %v", id, jobID, err)
		}
		o.record(ctx, id, datastores.Transition(datastores.StatusImportFailed, fmt.Sprintf("Error waiting for import job: %v", err)))
		return fail(KindUpstream, "error waiting for import job %s: %v", jobID, err)
	}
	if status != healthlake.JobCompleted {
		o.record(ctx, id, datastores.Transition(datastores.StatusImportFailed,
			fmt.Sprintf("Import job %s ended with status %s", jobID, status)))
		return fail(KindUpstream, "import job %s ended with status %s", jobID, status)
	}

	if err := o.commit(ctx, id, datastores.Transition(datastores.StatusImportCompleted,
		fmt.Sprintf("Import job %s completed", jobID))); err != nil {
		return writeFailure(id, err)
	}
	return ok("Import job %s completed", jobID)
}

func missingImportFields(rec *datastores.Record) []string {
	var missing []string
	if rec.S3Input == "" {
		missing = append(missing, "s3_input")
	}
	if rec.S3Output == "" {
		missing = append(missing, "s3_output")
	}
	if rec.DatastoreID == "" {
		missing = append(missing, "datastore_id")
	}
	return missing
}
