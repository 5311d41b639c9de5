// Package objectstore stages patient records in S3: bucket creation with KMS
// encryption, object IO, and full bucket teardown.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/stevenmeyer142/pintler-va-app/internal/aws"
	"github.com/stevenmeyer142/pintler-va-app/internal/logger"
)

// MaxBucketNameLength is the S3 bucket name ceiling.
const MaxBucketNameLength = 63

const waiterDelay = 5 * time.Second

type Config struct {
	Region            string
	BucketPrefix      string
	BucketWaitTimeout time.Duration
	ObjectWaitTimeout time.Duration
}

// Gateway wraps the S3 operations the lifecycle pipelines need.
type Gateway struct {
	client  aws.S3API
	cfg     Config
	log     *logger.Logger
	newUUID func() string
}

func NewGateway(client aws.S3API, cfg Config, log *logger.Logger) *Gateway {
	if cfg.BucketPrefix == "" {
		cfg.BucketPrefix = "va-patient-icn"
	}
	if cfg.BucketWaitTimeout <= 0 {
		cfg.BucketWaitTimeout = 30 * time.Second
	}
	if cfg.ObjectWaitTimeout <= 0 {
		cfg.ObjectWaitTimeout = 6 * time.Second
	}
	return &Gateway{
		client:  client,
		cfg:     cfg,
		log:     log.With("component", "ObjectStore"),
		newUUID: uuid.NewString,
	}
}

// BucketName builds "<prefix>-<icn>-<suffix>" truncated to 63 characters.
func BucketName(prefix, patientICN, suffix string) string {
	name := fmt.Sprintf("%s-%s-%s", prefix, strings.ToLower(patientICN), suffix)
	if len(name) > MaxBucketNameLength {
		name = name[:MaxBucketNameLength]
	}
	// bucket names may not end with a hyphen
	return strings.TrimRight(name, "-")
}

// CreateBucket creates a uniquely named bucket for the patient and blocks until it exists.
func (g *Gateway) CreateBucket(ctx context.Context, patientICN string) (string, error) {
	name := BucketName(g.cfg.BucketPrefix, patientICN, g.newUUID())

	input := &s3.CreateBucketInput{Bucket: sdkaws.String(name)}
	if g.cfg.Region != "" && g.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(g.cfg.Region),
		}
	}
	if _, err := g.client.CreateBucket(ctx, input); err != nil {
		return "", fmt.Errorf("create bucket %s: %w", name, err)
	}

	waiter := s3.NewBucketExistsWaiter(g.client, func(o *s3.BucketExistsWaiterOptions) {
		o.MinDelay = waiterDelay
		o.MaxDelay = waiterDelay
	})
	if err := waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: sdkaws.String(name)}, g.cfg.BucketWaitTimeout); err != nil {
		return "", fmt.Errorf("wait for bucket %s: %w", name, err)
	}

	g.log.Info("bucket created", "bucket", name, "patient_icn", patientICN)
	return name, nil
}

// ConfigureEncryption sets SSE-KMS with the given key as the bucket default.
func (g *Gateway) ConfigureEncryption(ctx context.Context, bucket, kmsKeyID string) error {
	_, err := g.client.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
		Bucket: sdkaws.String(bucket),
		ServerSideEncryptionConfiguration: &types.ServerSideEncryptionConfiguration{
			Rules: []types.ServerSideEncryptionRule{
				{
					ApplyServerSideEncryptionByDefault: &types.ServerSideEncryptionByDefault{
						SSEAlgorithm:   types.ServerSideEncryptionAwsKms,
						KMSMasterKeyID: sdkaws.String(kmsKeyID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put bucket encryption %s: %w", bucket, err)
	}
	return nil
}

func (g *Gateway) PutObject(ctx context.Context, bucket, key string, content []byte) error {
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: sdkaws.String(bucket),
		Key:    sdkaws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return fmt.Errorf("put object s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (g *Gateway) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: sdkaws.String(bucket),
		Key:    sdkaws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object s3://%s/%s: %w", bucket, key, err)
	}
	return body, nil
}

// StagePatientRecord creates an encrypted bucket for the patient and uploads the record.
func (g *Gateway) StagePatientRecord(ctx context.Context, patientICN, key string, content []byte, kmsKeyID string) (string, error) {
	bucket, err := g.CreateBucket(ctx, patientICN)
	if err != nil {
		return "", err
	}
	if err := g.ConfigureEncryption(ctx, bucket, kmsKeyID); err != nil {
		return "", err
	}
	if err := g.PutObject(ctx, bucket, key, content); err != nil {
		return "", err
	}
	return bucket, nil
}

// DeleteAllObjectsAndBucket empties the bucket, confirming each object delete,
// then removes the bucket. A bucket that is already gone counts as deleted.
func (g *Gateway) DeleteAllObjectsAndBucket(ctx context.Context, bucket string) error {
	log := g.log.With("bucket", bucket)

	waiter := s3.NewObjectNotExistsWaiter(g.client, func(o *s3.ObjectNotExistsWaiterOptions) {
		o.MinDelay = time.Second
		o.MaxDelay = time.Second
	})

	deleted := 0
	pages := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{Bucket: sdkaws.String(bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			if isNoSuchBucket(err) {
				log.Warn("bucket already deleted")
				return nil
			}
			return fmt.Errorf("list objects %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			key := *obj.Key
			if _, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: sdkaws.String(bucket),
				Key:    sdkaws.String(key),
			}); err != nil {
				return fmt.Errorf("delete object s3://%s/%s: %w", bucket, key, err)
			}
			if err := waiter.Wait(ctx, &s3.HeadObjectInput{
				Bucket: sdkaws.String(bucket),
				Key:    sdkaws.String(key),
			}, g.cfg.ObjectWaitTimeout); err != nil {
				return fmt.Errorf("wait for delete s3://%s/%s: %w", bucket, key, err)
			}
			deleted++
		}
	}

	if _, err := g.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: sdkaws.String(bucket)}); err != nil {
		if isNoSuchBucket(err) {
			return nil
		}
		return fmt.Errorf("delete bucket %s: %w", bucket, err)
	}
	log.Info("bucket deleted", "objects", deleted)
	return nil
}

func isNoSuchBucket(err error) bool {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket"
}
