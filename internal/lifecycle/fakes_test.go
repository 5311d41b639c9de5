package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stevenmeyer142/pintler-va-app/internal/convert"
	"github.com/stevenmeyer142/pintler-va-app/internal/datastores"
	"github.com/stevenmeyer142/pintler-va-app/internal/healthlake"
	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

// fakeLake ticks through the scripted statuses; the last one is the result.
type fakeLake struct {
	mu sync.Mutex

	createCalls int
	createErr   error
	startErr    error
	deleteCalls int
	deleteErr   error
	importInput healthlake.ImportJobInput

	activeScript []string
	importScript []string
	deleteScript []string

	// onTick runs before the pipeline's tick callback.
	onTick func(op string, iteration int)
}

func (f *fakeLake) CreateDatastore(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	return "ds-1", nil
}

func (f *fakeLake) run(ctx context.Context, op string, script []string, onTick healthlake.TickFunc) (string, error) {
	last := ""
	for i, status := range script {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		last = status
		if f.onTick != nil {
			f.onTick(op, i+1)
		}
		if err := onTick(ctx, healthlake.Tick{Status: status, Iteration: i + 1}); err != nil {
			return status, fmt.Errorf("%w: %w", healthlake.ErrPollAborted, err)
		}
	}
	return last, nil
}

func (f *fakeLake) PollUntilActive(ctx context.Context, datastoreID string, onTick healthlake.TickFunc) (bool, error) {
	status, err := f.run(ctx, "create", f.activeScript, onTick)
	if err != nil {
		return false, err
	}
	return status == healthlake.StatusActive, nil
}

func (f *fakeLake) StartImportJob(ctx context.Context, in healthlake.ImportJobInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.importInput = in
	if f.startErr != nil {
		return "", f.startErr
	}
	return "job-1", nil
}

func (f *fakeLake) PollUntilImportComplete(ctx context.Context, datastoreID, jobID string, onTick healthlake.TickFunc) (string, error) {
	return f.run(ctx, "import", f.importScript, onTick)
}

func (f *fakeLake) DeleteDatastore(ctx context.Context, datastoreID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return "", f.deleteErr
	}
	return healthlake.StatusDeleting, nil
}

func (f *fakeLake) PollUntilDeleted(ctx context.Context, datastoreID string, onTick healthlake.TickFunc) (bool, error) {
	status, err := f.run(ctx, "delete", f.deleteScript, onTick)
	if err != nil {
		return false, err
	}
	return status == healthlake.StatusDeleted, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *fakeObjects) DeleteAllObjectsAndBucket(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, bucket)
	return nil
}

type fakeConverter struct {
	err error
}

func (f fakeConverter) Convert(ctx context.Context, bucket, jsonKey, ndjsonKey string) (convert.Result, error) {
	if f.err != nil {
		return convert.Result{}, f.err
	}
	return convert.Result{NDJSONKey: ndjsonKey, ResourceType: "Patient", Entries: 1}, nil
}

// statusLog records every status the store accepted, in order.
type statusLog struct {
	mu     sync.Mutex
	events []datastores.Event
}

func (s *statusLog) Notify(ctx context.Context, e datastores.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// distinct returns the statuses seen for id with consecutive repeats collapsed.
func (s *statusLog) distinct(id string) []datastores.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []datastores.Status
	for _, e := range s.events {
		if e.ID != id || e.Record == nil {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == e.Record.Status {
			continue
		}
		out = append(out, e.Record.Status)
	}
	return out
}

func (s *statusLog) deletes(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.ID == id && e.Type == datastores.EventDelete {
			n++
		}
	}
	return n
}

type harness struct {
	orch    *Orchestrator
	store   *datastores.MemoryStore
	lake    *fakeLake
	objects *fakeObjects
	events  *statusLog
}

// liveOnly refuses reads and writes once ctx is done, the way a network
// backed store does.
type liveOnly struct {
	datastores.Store
}

func (l liveOnly) Get(ctx context.Context, id string) (*datastores.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.Store.Get(ctx, id)
}

func (l liveOnly) Create(ctx context.Context, rec *datastores.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.Store.Create(ctx, rec)
}

func (l liveOnly) Update(ctx context.Context, id string, patch datastores.Patch) (*datastores.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.Store.Update(ctx, id, patch)
}

func (l liveOnly) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.Store.Delete(ctx, id)
}

func newHarness() *harness {
	return newHarnessWith(func(s datastores.Store) datastores.Store { return s })
}

// newHarnessWith lets a test wrap the observed store the orchestrator writes through.
func newHarnessWith(wrap func(datastores.Store) datastores.Store) *harness {
	h := &harness{
		store: datastores.NewMemoryStore(),
		lake: &fakeLake{
			activeScript: []string{healthlake.StatusCreating, healthlake.StatusActive},
			importScript: []string{healthlake.JobSubmitted, healthlake.JobInProgress, healthlake.JobCompleted},
			deleteScript: []string{healthlake.StatusDeleting, healthlake.StatusDeleted},
		},
		objects: &fakeObjects{},
		events:  &statusLog{},
	}
	log := logger.NewNop()
	h.orch = New(Deps{
		Records:   wrap(datastores.Observed(h.store, h.events, log)),
		Lake:      h.lake,
		Objects:   h.objects,
		Converter: fakeConverter{},
		Log:       log,
	}, Settings{KMSKeyID: "kms-1", DataAccessRoleARN: "arn:aws:iam::123456789012:role/import"})
	return h
}

func (h *harness) seed(t *testing.T, rec datastores.Record) {
	t.Helper()
	if err := h.store.Create(context.Background(), &rec); err != nil {
		t.Fatalf("seed %s: %v", rec.ID, err)
	}
}

func (h *harness) status(t *testing.T, id string) datastores.Status {
	t.Helper()
	rec, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	if rec == nil {
		t.Fatalf("record %s missing", id)
	}
	return rec.Status
}

var errBoom = errors.New("boom")
