package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/stevenmeyer142/pintler-va-app/internal/datastores"
	"github.com/stevenmeyer142/pintler-va-app/internal/healthlake"
	"github.com/stevenmeyer142/pintler-va-app/internal/validation"
)

// CreateDataStore gets or creates the record, creates the datastore and waits
// for it to become active.
func (o *Orchestrator) CreateDataStore(ctx context.Context, req validation.CreateDataStoreRequest) (resp Response) {
	ctx, done := o.begin(ctx, OpCreateDataStore, req.ID)
	defer func() { done(&resp) }()

	if r, valid := o.checkRequest(req); !valid {
		return r
	}

	rec, err := o.getOrCreate(ctx, req)
	if err != nil {
		return fail(KindUpstream, "error loading HealthLakeDatastore record %s: %v", req.ID, err)
	}

	datastoreID := rec.DatastoreID
	switch {
	case rec.Status.Phase() == datastores.PhaseDelete:
		return fail(KindConflict, "record %s is %s; create is not allowed", req.ID, rec.Status)
	case datastoreID != "" && rec.Status == datastores.StatusCreating:
		o.log.Info("resuming datastore poll", "record_id", req.ID, "datastore_id", datastoreID)
	case datastoreID != "" && rec.Status == datastores.StatusCreatingFailed:
		return withDatastore(fail(KindConflict, "datastore %s for record %s failed to create; delete it before retrying", datastoreID, req.ID), datastoreID)
	case datastoreID != "":
		r := ok("Datastore %s already created (status %s)", datastoreID, rec.Status)
		r.DataStoreID = datastoreID
		return r
	default:
		datastoreID, err = o.lake.CreateDatastore(ctx, req.Name)
		if err != nil {
			o.record(ctx, req.ID, datastores.Transition(datastores.StatusCreatingFailed, fmt.Sprintf("Error creating datastore: %v", err)))
			return fail(KindUpstream, "error creating datastore %s: %v", req.Name, err)
		}
		patch := datastores.Transition(datastores.StatusCreating, fmt.Sprintf("Creating datastore %s", datastoreID)).WithDatastoreID(datastoreID)
		if rec.Name != req.Name {
			patch.Name = &req.Name
		}
		if err := o.commit(ctx, req.ID, patch); err != nil {
			return withDatastore(writeFailure(req.ID, err), datastoreID)
		}
	}

	return withDatastore(o.awaitActive(ctx, req.ID, datastoreID), datastoreID)
}

func (o *Orchestrator) awaitActive(ctx context.Context, id, datastoreID string) Response {
	var last healthlake.Tick
	active, err := o.lake.PollUntilActive(ctx, datastoreID, func(ctx context.Context, t healthlake.Tick) error {
		last = t
		return o.progress(ctx, id, datastores.Transition(datastores.StatusCreating,
			fmt.Sprintf("Datastore %s status %s (check %d)", datastoreID, t.Status, t.Iteration)))
	})
	o.metrics.PollIterations(ctx, OpCreateDataStore, last.Iteration)

	if err != nil {
		if errors.Is(err, healthlake.ErrPollAborted) {
			return fail(KindConflict, "record %s changed while waiting for datastore %s: %v", id, datastoreID, err)
		}
		o.record(ctx, id, datastores.Transition(datastores.StatusCreatingFailed, fmt.Sprintf("Error waiting for datastore: %v", err)))
		return fail(KindUpstream, "error waiting for datastore %s: %v", datastoreID, err)
	}
	if !active {
		o.record(ctx, id, datastores.Transition(datastores.StatusCreatingFailed,
			fmt.Sprintf("Datastore %s ended with status %s", datastoreID, last.Status)))
		return fail(KindUpstream, "datastore %s ended with status %s", datastoreID, last.Status)
	}

	if err := o.commit(ctx, id, datastores.Transition(datastores.StatusCreateCompleted,
		fmt.Sprintf("Datastore %s is ACTIVE", datastoreID))); err != nil {
		return writeFailure(id, err)
	}
	return ok("Datastore %s created", datastoreID)
}

// getOrCreate returns the existing record or creates an INITIALIZED one.
func (o *Orchestrator) getOrCreate(ctx context.Context, req validation.CreateDataStoreRequest) (*datastores.Record, error) {
	rec, err := o.records.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	rec = &datastores.Record{
		ID:                req.ID,
		Name:              req.Name,
		PatientICN:        req.PatientICN,
		S3Input:           req.S3Input,
		S3Output:          datastores.OutputURI(req.S3Input),
		Status:            datastores.StatusInitialized,
		StatusDescription: "Initialized",
	}
	err = o.records.Create(ctx, rec)
	if errors.Is(err, datastores.ErrAlreadyExists) {
		// lost a race with another create for the same id
		existing, err := o.records.Get(ctx, req.ID)
		if err == nil && existing == nil {
			err = fmt.Errorf("record %s vanished after create conflict", req.ID)
		}
		return existing, err
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func withDatastore(r Response, datastoreID string) Response {
	r.DataStoreID = datastoreID
	return r
}
