package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/stevenmeyer142/pintler-va-app/internal/datastores"
	"github.com/stevenmeyer142/pintler-va-app/internal/healthlake"
	"github.com/stevenmeyer142/pintler-va-app/internal/objectstore"
	"github.com/stevenmeyer142/pintler-va-app/internal/validation"
)

// DeleteDatastore removes the staged bucket and the datastore, then the record.
// A failure leaves the record in DELETE_FAILED.
func (o *Orchestrator) DeleteDatastore(ctx context.Context, req validation.DeleteDatastoreRequest) (resp Response) {
	id := req.HealthRecordID
	ctx, done := o.begin(ctx, OpDeleteDatastore, id)
	defer func() { done(&resp) }()

	if r, valid := o.checkRequest(req); !valid {
		return r
	}

	rec, err := o.records.Get(ctx, id)
	if err != nil {
		return fail(KindUpstream, "error loading HealthLakeDatastore record %s: %v", id, err)
	}
	if rec == nil {
		return fail(KindNotFound, "Cannot delete: missing HealthLakeDatastore record for health_record_id %s", id)
	}

	// a previous run removed everything but the record itself
	if rec.Status == datastores.StatusDeleteCompleted {
		return o.removeRecord(ctx, id)
	}
	if !rec.Status.CanTransitionTo(datastores.StatusDeleting) {
		return fail(KindConflict, "record %s is %s; delete is not allowed", id, rec.Status)
	}

	if err := o.commit(ctx, id, datastores.Transition(datastores.StatusDeleting, "Deleting staged bucket")); err != nil {
		return writeFailure(id, err)
	}

	bucket, _, err := objectstore.ParseS3URI(rec.S3Input)
	if err != nil {
		o.record(ctx, id, datastores.Transition(datastores.StatusDeleteFailed, fmt.Sprintf("Invalid s3_input: %v", err)))
		return fail(KindIntegrity, "HealthLakeDatastore record %s has an invalid s3_input: %v", id, err)
	}
	if err := o.objects.DeleteAllObjectsAndBucket(ctx, bucket); err != nil {
		o.record(ctx, id, datastores.Transition(datastores.StatusDeleteFailed, fmt.Sprintf("Error deleting bucket %s: %v", bucket, err)))
		return fail(KindUpstream, "error deleting bucket %s: %v", bucket, err)
	}

	if rec.DatastoreID != "" {
		if r := o.deleteControlPlane(ctx, id, rec.DatastoreID); !r.Success {
			r.DataStoreID = rec.DatastoreID
			return r
		}
	} else {
		o.log.Info("no datastore assigned, skipping control plane delete", "record_id", id)
	}

	if err := o.commit(ctx, id, datastores.Transition(datastores.StatusDeleteCompleted, "Bucket and datastore deleted")); err != nil {
		return writeFailure(id, err)
	}
	return o.removeRecord(ctx, id)
}

func (o *Orchestrator) deleteControlPlane(ctx context.Context, id, datastoreID string) Response {
	if err := o.progress(ctx, id, datastores.Transition(datastores.StatusDeleting,
		fmt.Sprintf("Deleting datastore %s", datastoreID))); err != nil {
		return writeFailure(id, err)
	}

	if _, err := o.lake.DeleteDatastore(ctx, datastoreID); err != nil {
		o.record(ctx, id, datastores.Transition(datastores.StatusDeleteFailed, fmt.Sprintf("Error deleting datastore: %v", err)))
		return fail(KindUpstream, "error deleting datastore %s: %v", datastoreID, err)
	}

	var last healthlake.Tick
	deleted, err := o.lake.PollUntilDeleted(ctx, datastoreID, func(ctx context.Context, t healthlake.Tick) error {
		last = t
		return o.progress(ctx, id, datastores.Transition(datastores.StatusDeleting,
			fmt.Sprintf("Datastore %s status %s (check %d)", datastoreID, t.Status, t.Iteration)))
	})
	o.metrics.PollIterations(ctx, OpDeleteDatastore, last.Iteration)

	if err != nil {
		if errors.Is(err, healthlake.ErrPollAborted) {
			return fail(KindConflict, "record %s changed while waiting for datastore %s deletion: %v", id, datastoreID, err)
		}
		o.record(ctx, id, datastores.Transition(datastores.StatusDeleteFailed, fmt.Sprintf("Error waiting for datastore deletion: %v", err)))
		return fail(KindUpstream, "error waiting for datastore %s deletion: %v", datastoreID, err)
	}
	if !deleted {
		o.record(ctx, id, datastores.Transition(datastores.StatusDeleteFailed,
			fmt.Sprintf("Datastore %s deletion ended with status %s", datastoreID, last.Status)))
		return fail(KindUpstream, "datastore %s deletion ended with status %s", datastoreID, last.Status)
	}
	return ok("Datastore %s deleted", datastoreID)
}

func (o *Orchestrator) removeRecord(ctx context.Context, id string) Response {
	if err := o.records.Delete(ctx, id); err != nil {
		return fail(KindUpstream, "resources deleted but HealthLakeDatastore record %s could not be removed: %v", id, err)
	}
	return ok("Datastore deleted")
}
