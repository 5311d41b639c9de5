// Package healthlake wraps the FHIR datastore control plane: create, import,
// delete, and the polling loops that wait for each to settle.
package healthlake

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/healthlake"
	"github.com/aws/aws-sdk-go-v2/service/healthlake/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/stevenmeyer142/pintler-va-app/internal/aws"
	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

// Datastore and import job status strings reported by the control plane.
const (
	StatusCreating     = "CREATING"
	StatusActive       = "ACTIVE"
	StatusCreateFailed = "CREATE_FAILED"
	StatusDeleting     = "DELETING"
	StatusDeleted      = "DELETED"

	JobSubmitted  = "SUBMITTED"
	JobQueued     = "QUEUED"
	JobInProgress = "IN_PROGRESS"
	JobCompleted  = "COMPLETED"
	JobFailed     = "FAILED"
)

var (
	ErrPollAborted = errors.New("poll aborted")
	ErrPollLimit   = errors.New("poll attempt limit reached")
)

type PollConfig struct {
	Interval time.Duration
	// MaxAttempts of 0 polls until a terminal status.
	MaxAttempts int
}

// Tick is one describe result handed to the caller during polling.
type Tick struct {
	Status    string
	Iteration int
}

// TickFunc runs after every describe call. A non-nil error stops the loop.
type TickFunc func(ctx context.Context, tick Tick) error

type Client struct {
	api  aws.HealthLakeAPI
	poll PollConfig
	log  *logger.Logger
}

func NewClient(api aws.HealthLakeAPI, poll PollConfig, log *logger.Logger) *Client {
	return &Client{api: api, poll: poll, log: log.With("component", "HealthLakeClient")}
}

// CreateDatastore requests a new FHIR R4 datastore and returns its id.
func (c *Client) CreateDatastore(ctx context.Context, name string) (string, error) {
	out, err := c.api.CreateFHIRDatastore(ctx, &healthlake.CreateFHIRDatastoreInput{
		DatastoreName:        sdkaws.String(name),
		DatastoreTypeVersion: types.FHIRVersionR4,
	})
	if err != nil {
		return "", fmt.Errorf("create datastore %s: %w", name, err)
	}
	id := sdkaws.ToString(out.DatastoreId)
	if id == "" {
		return "", fmt.Errorf("create datastore %s: empty datastore id", name)
	}
	c.log.Info("datastore creation started", "datastore_id", id, "name", name)
	return id, nil
}

// PollUntilActive polls while the datastore is CREATING. It reports true only
// when the datastore became ACTIVE.
func (c *Client) PollUntilActive(ctx context.Context, datastoreID string, onTick TickFunc) (bool, error) {
	status, err := c.pollLoop(ctx, onTick, func(ctx context.Context) (string, bool, error) {
		status, err := c.describeDatastore(ctx, datastoreID)
		if err != nil {
			return "", false, err
		}
		if status == "" {
			status = StatusCreateFailed
		}
		return status, status == StatusCreating, nil
	})
	if err != nil {
		return false, fmt.Errorf("poll datastore %s: %w", datastoreID, err)
	}
	return status == StatusActive, nil
}

type ImportJobInput struct {
	JobName           string
	DatastoreID       string
	InputURI          string
	OutputURI         string
	KMSKeyID          string
	DataAccessRoleARN string
}

// StartImportJob starts a bulk import and returns the job id. An empty job
// name gets a generated one.
func (c *Client) StartImportJob(ctx context.Context, in ImportJobInput) (string, error) {
	if in.JobName == "" {
		in.JobName = "import-" + uuid.NewString()
	}
	out, err := c.api.StartFHIRImportJob(ctx, &healthlake.StartFHIRImportJobInput{
		JobName:           sdkaws.String(in.JobName),
		DatastoreId:       sdkaws.String(in.DatastoreID),
		DataAccessRoleArn: sdkaws.String(in.DataAccessRoleARN),
		InputDataConfig:   &types.InputDataConfigMemberS3Uri{Value: in.InputURI},
		JobOutputDataConfig: &types.OutputDataConfigMemberS3Configuration{
			Value: types.S3Configuration{
				S3Uri:    sdkaws.String(in.OutputURI),
				KmsKeyId: sdkaws.String(in.KMSKeyID),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("start import job %s: %w", in.JobName, err)
	}
	jobID := sdkaws.ToString(out.JobId)
	c.log.Info("import job started", "job_id", jobID, "datastore_id", in.DatastoreID, "input", in.InputURI)
	return jobID, nil
}

// PollUntilImportComplete polls while the job is SUBMITTED, QUEUED or
// IN_PROGRESS and returns the terminal job status.
func (c *Client) PollUntilImportComplete(ctx context.Context, datastoreID, jobID string, onTick TickFunc) (string, error) {
	status, err := c.pollLoop(ctx, onTick, func(ctx context.Context) (string, bool, error) {
		out, err := c.api.DescribeFHIRImportJob(ctx, &healthlake.DescribeFHIRImportJobInput{
			DatastoreId: sdkaws.String(datastoreID),
			JobId:       sdkaws.String(jobID),
		})
		if err != nil {
			return "", false, fmt.Errorf("describe import job %s: %w", jobID, err)
		}
		status := ""
		if out.ImportJobProperties != nil {
			status = string(out.ImportJobProperties.JobStatus)
		}
		if status == "" {
			status = JobFailed
		}
		return status, importPending(status), nil
	})
	if err != nil {
		return "", fmt.Errorf("poll import job %s: %w", jobID, err)
	}
	return status, nil
}

// DeleteDatastore requests deletion. A datastore that is already gone reports DELETED.
func (c *Client) DeleteDatastore(ctx context.Context, datastoreID string) (string, error) {
	out, err := c.api.DeleteFHIRDatastore(ctx, &healthlake.DeleteFHIRDatastoreInput{
		DatastoreId: sdkaws.String(datastoreID),
	})
	if err != nil {
		if IsNotFound(err) {
			c.log.Warn("datastore already deleted", "datastore_id", datastoreID)
			return StatusDeleted, nil
		}
		return "", fmt.Errorf("delete datastore %s: %w", datastoreID, err)
	}
	c.log.Info("datastore deletion started", "datastore_id", datastoreID, "status", out.DatastoreStatus)
	return string(out.DatastoreStatus), nil
}

// PollUntilDeleted polls while the datastore is DELETING. Not found on
// describe counts as deleted.
func (c *Client) PollUntilDeleted(ctx context.Context, datastoreID string, onTick TickFunc) (bool, error) {
	status, err := c.pollLoop(ctx, onTick, func(ctx context.Context) (string, bool, error) {
		status, err := c.describeDatastore(ctx, datastoreID)
		if err != nil {
			if IsNotFound(err) {
				return StatusDeleted, false, nil
			}
			return "", false, err
		}
		if status == "" {
			status = StatusDeleting
		}
		return status, status == StatusDeleting, nil
	})
	if err != nil {
		return false, fmt.Errorf("poll datastore deletion %s: %w", datastoreID, err)
	}
	return status == StatusDeleted, nil
}

func (c *Client) describeDatastore(ctx context.Context, datastoreID string) (string, error) {
	out, err := c.api.DescribeFHIRDatastore(ctx, &healthlake.DescribeFHIRDatastoreInput{
		DatastoreId: sdkaws.String(datastoreID),
	})
	if err != nil {
		return "", fmt.Errorf("describe datastore %s: %w", datastoreID, err)
	}
	if out.DatastoreProperties == nil {
		return "", nil
	}
	return string(out.DatastoreProperties.DatastoreStatus), nil
}

func importPending(status string) bool {
	switch status {
	case JobSubmitted, JobQueued, JobInProgress:
		return true
	}
	return false
}

// IsNotFound reports whether err is the control plane's ResourceNotFoundException.
func IsNotFound(err error) bool {
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException"
}
