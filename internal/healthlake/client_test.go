package healthlake

import (
	"context"
	"errors"
	"sync"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/healthlake"
	"github.com/aws/aws-sdk-go-v2/service/healthlake/types"

	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

// scriptedLake replays the configured statuses one describe call at a time;
// the last status repeats once the script runs out.
type scriptedLake struct {
	mu              sync.Mutex
	datastoreScript []string
	jobScript       []string
	describeCalls   int
	jobCalls        int
	describeErr     error
	deleteErr       error
	createErr       error
	startInput      *healthlake.StartFHIRImportJobInput
	createInput     *healthlake.CreateFHIRDatastoreInput
}

func next(script []string, call int) string {
	if len(script) == 0 {
		return ""
	}
	if call >= len(script) {
		return script[len(script)-1]
	}
	return script[call]
}

func (s *scriptedLake) CreateFHIRDatastore(ctx context.Context, params *healthlake.CreateFHIRDatastoreInput, optFns ...func(*healthlake.Options)) (*healthlake.CreateFHIRDatastoreOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createInput = params
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &healthlake.CreateFHIRDatastoreOutput{DatastoreId: sdkaws.String("ds-1")}, nil
}

func (s *scriptedLake) DescribeFHIRDatastore(ctx context.Context, params *healthlake.DescribeFHIRDatastoreInput, optFns ...func(*healthlake.Options)) (*healthlake.DescribeFHIRDatastoreOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.describeCalls
	s.describeCalls++
	if s.describeErr != nil {
		return nil, s.describeErr
	}
	status := next(s.datastoreScript, call)
	if status == "" {
		return &healthlake.DescribeFHIRDatastoreOutput{}, nil
	}
	return &healthlake.DescribeFHIRDatastoreOutput{
		DatastoreProperties: &types.DatastoreProperties{DatastoreStatus: types.DatastoreStatus(status)},
	}, nil
}

func (s *scriptedLake) DeleteFHIRDatastore(ctx context.Context, params *healthlake.DeleteFHIRDatastoreInput, optFns ...func(*healthlake.Options)) (*healthlake.DeleteFHIRDatastoreOutput, error) {
	if s.deleteErr != nil {
		return nil, s.deleteErr
	}
	return &healthlake.DeleteFHIRDatastoreOutput{DatastoreStatus: types.DatastoreStatus(StatusDeleting)}, nil
}

func (s *scriptedLake) StartFHIRImportJob(ctx context.Context, params *healthlake.StartFHIRImportJobInput, optFns ...func(*healthlake.Options)) (*healthlake.StartFHIRImportJobOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startInput = params
	return &healthlake.StartFHIRImportJobOutput{JobId: sdkaws.String("job-1")}, nil
}

func (s *scriptedLake) DescribeFHIRImportJob(ctx context.Context, params *healthlake.DescribeFHIRImportJobInput, optFns ...func(*healthlake.Options)) (*healthlake.DescribeFHIRImportJobOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.jobCalls
	s.jobCalls++
	status := next(s.jobScript, call)
	if status == "" {
		return &healthlake.DescribeFHIRImportJobOutput{}, nil
	}
	return &healthlake.DescribeFHIRImportJobOutput{
		ImportJobProperties: &types.ImportJobProperties{JobStatus: types.JobStatus(status)},
	}, nil
}

func newTestClient(lake *scriptedLake, maxAttempts int) *Client {
	return NewClient(lake, PollConfig{Interval: 0, MaxAttempts: maxAttempts}, logger.NewNop())
}

type tickRecorder struct {
	ticks []Tick
}

func (r *tickRecorder) record(ctx context.Context, t Tick) error {
	r.ticks = append(r.ticks, t)
	return nil
}

func TestCreateDatastore_R4(t *testing.T) {
	lake := &scriptedLake{}
	c := newTestClient(lake, 0)

	id, err := c.CreateDatastore(context.Background(), "n")
	if err != nil {
		t.Fatalf("CreateDatastore error: %v", err)
	}
	if id != "ds-1" {
		t.Fatalf("unexpected id %s", id)
	}
	if lake.createInput.DatastoreTypeVersion != types.FHIRVersionR4 {
		t.Fatalf("expected R4, got %s", lake.createInput.DatastoreTypeVersion)
	}
}

func TestCreateDatastore_Error(t *testing.T) {
	lake := &scriptedLake{createErr: errors.New("quota")}
	c := newTestClient(lake, 0)
	if _, err := c.CreateDatastore(context.Background(), "n"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPollUntilActive_CreatingThenActive(t *testing.T) {
	lake := &scriptedLake{datastoreScript: []string{StatusCreating, StatusCreating, StatusActive}}
	c := newTestClient(lake, 0)
	rec := &tickRecorder{}

	ok, err := c.PollUntilActive(context.Background(), "ds-1", rec.record)
	if err != nil {
		t.Fatalf("PollUntilActive error: %v", err)
	}
	if !ok {
		t.Fatalf("expected active")
	}
	if len(rec.ticks) != 3 {
		t.Fatalf("expected 3 callbacks, got %d", len(rec.ticks))
	}
	for i, tick := range rec.ticks {
		if tick.Iteration != i+1 {
			t.Fatalf("tick %d has iteration %d", i, tick.Iteration)
		}
	}
	if rec.ticks[2].Status != StatusActive {
		t.Fatalf("expected last tick ACTIVE, got %s", rec.ticks[2].Status)
	}
}

func TestPollUntilActive_FailedShortCircuits(t *testing.T) {
	lake := &scriptedLake{datastoreScript: []string{StatusCreateFailed}}
	c := newTestClient(lake, 0)
	rec := &tickRecorder{}

	ok, err := c.PollUntilActive(context.Background(), "ds-1", rec.record)
	if err != nil {
		t.Fatalf("expected no error for failed terminal status, got %v", err)
	}
	if ok {
		t.Fatalf("expected false")
	}
	if lake.describeCalls != 1 {
		t.Fatalf("expected one describe call, got %d", lake.describeCalls)
	}
	if len(rec.ticks) != 1 {
		t.Fatalf("expected one tick, got %d", len(rec.ticks))
	}
}

func TestPollUntilActive_MissingStatusIsFailure(t *testing.T) {
	lake := &scriptedLake{datastoreScript: []string{""}}
	c := newTestClient(lake, 0)

	ok, err := c.PollUntilActive(context.Background(), "ds-1", nil)
	if err != nil || ok {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestPollUntilActive_TransportErrorPropagates(t *testing.T) {
	lake := &scriptedLake{describeErr: errors.New("throttled")}
	c := newTestClient(lake, 0)

	if _, err := c.PollUntilActive(context.Background(), "ds-1", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPollUntilActive_CallbackAborts(t *testing.T) {
	lake := &scriptedLake{datastoreScript: []string{StatusCreating}}
	c := newTestClient(lake, 0)
	stop := errors.New("record moved")

	_, err := c.PollUntilActive(context.Background(), "ds-1", func(ctx context.Context, t Tick) error {
		return stop
	})
	if !errors.Is(err, ErrPollAborted) || !errors.Is(err, stop) {
		t.Fatalf("expected ErrPollAborted wrapping callback error, got %v", err)
	}
	if lake.describeCalls != 1 {
		t.Fatalf("expected loop to stop after first describe, got %d", lake.describeCalls)
	}
}

func TestPollUntilActive_AttemptLimit(t *testing.T) {
	lake := &scriptedLake{datastoreScript: []string{StatusCreating}}
	c := newTestClient(lake, 4)

	_, err := c.PollUntilActive(context.Background(), "ds-1", nil)
	if !errors.Is(err, ErrPollLimit) {
		t.Fatalf("expected ErrPollLimit, got %v", err)
	}
	if lake.describeCalls != 4 {
		t.Fatalf("expected 4 describe calls, got %d", lake.describeCalls)
	}
}

func TestPollUntilActive_ContextCancelled(t *testing.T) {
	lake := &scriptedLake{datastoreScript: []string{StatusCreating}}
	c := NewClient(lake, PollConfig{Interval: 1e9}, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	_, err := c.PollUntilActive(ctx, "ds-1", func(ctx context.Context, t Tick) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStartImportJob(t *testing.T) {
	lake := &scriptedLake{}
	c := newTestClient(lake, 0)

	jobID, err := c.StartImportJob(context.Background(), ImportJobInput{
		DatastoreID:       "ds-1",
		InputURI:          "s3://b/k.ndjson",
		OutputURI:         "s3://b/k.ndjson_output",
		KMSKeyID:          "kms",
		DataAccessRoleARN: "arn:aws:iam::1:role/r",
	})
	if err != nil {
		t.Fatalf("StartImportJob error: %v", err)
	}
	if jobID != "job-1" {
		t.Fatalf("unexpected job id %s", jobID)
	}
	in := lake.startInput
	if sdkaws.ToString(in.JobName) == "" {
		t.Fatalf("expected generated job name")
	}
	s3in, ok := in.InputDataConfig.(*types.InputDataConfigMemberS3Uri)
	if !ok || s3in.Value != "s3://b/k.ndjson" {
		t.Fatalf("unexpected input config %#v", in.InputDataConfig)
	}
	out, ok := in.JobOutputDataConfig.(*types.OutputDataConfigMemberS3Configuration)
	if !ok || sdkaws.ToString(out.Value.S3Uri) != "s3://b/k.ndjson_output" || sdkaws.ToString(out.Value.KmsKeyId) != "kms" {
		t.Fatalf("unexpected output config %#v", in.JobOutputDataConfig)
	}
}

func TestPollUntilImportComplete(t *testing.T) {
	lake := &scriptedLake{jobScript: []string{JobSubmitted, JobQueued, JobInProgress, JobCompleted}}
	c := newTestClient(lake, 0)
	rec := &tickRecorder{}

	status, err := c.PollUntilImportComplete(context.Background(), "ds-1", "job-1", rec.record)
	if err != nil {
		t.Fatalf("PollUntilImportComplete error: %v", err)
	}
	if status != JobCompleted {
		t.Fatalf("expected COMPLETED, got %s", status)
	}
	if len(rec.ticks) != 4 {
		t.Fatalf("expected 4 ticks, got %d", len(rec.ticks))
	}
}

func TestPollUntilImportComplete_FailedIsNotAnError(t *testing.T) {
	lake := &scriptedLake{jobScript: []string{JobInProgress, JobFailed}}
	c := newTestClient(lake, 0)

	status, err := c.PollUntilImportComplete(context.Background(), "ds-1", "job-1", nil)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if status != JobFailed {
		t.Fatalf("expected FAILED, got %s", status)
	}
}

func TestDeleteDatastore_NotFoundIsDeleted(t *testing.T) {
	lake := &scriptedLake{deleteErr: &types.ResourceNotFoundException{}}
	c := newTestClient(lake, 0)

	status, err := c.DeleteDatastore(context.Background(), "ds-1")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if status != StatusDeleted {
		t.Fatalf("expected DELETED, got %s", status)
	}
}

func TestPollUntilDeleted(t *testing.T) {
	lake := &scriptedLake{datastoreScript: []string{StatusDeleting, StatusDeleted}}
	c := newTestClient(lake, 0)
	rec := &tickRecorder{}

	ok, err := c.PollUntilDeleted(context.Background(), "ds-1", rec.record)
	if err != nil || !ok {
		t.Fatalf("expected (true, nil), got (%v, %v)", ok, err)
	}
	if len(rec.ticks) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(rec.ticks))
	}
}

func TestPollUntilDeleted_NotFoundIsDeleted(t *testing.T) {
	lake := &scriptedLake{describeErr: &types.ResourceNotFoundException{}}
	c := newTestClient(lake, 0)
	rec := &tickRecorder{}

	ok, err := c.PollUntilDeleted(context.Background(), "ds-1", rec.record)
	if err != nil || !ok {
		t.Fatalf("expected (true, nil), got (%v, %v)", ok, err)
	}
	if len(rec.ticks) != 1 || rec.ticks[0].Status != StatusDeleted {
		t.Fatalf("unexpected ticks %+v", rec.ticks)
	}
}
