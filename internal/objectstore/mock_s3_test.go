package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// mockS3 keeps buckets and objects in memory: bucket -> key -> body.
type mockS3 struct {
	mu          sync.Mutex
	buckets     map[string]map[string][]byte
	encryption  map[string]string
	regions     map[string]string
	deleteCalls []string
	createErr   error
	putErr      error
}

func newMockS3() *mockS3 {
	return &mockS3{
		buckets:    map[string]map[string][]byte{},
		encryption: map[string]string{},
		regions:    map[string]string{},
	}
}

func (m *mockS3) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	name := *params.Bucket
	if _, ok := m.buckets[name]; ok {
		return nil, &types.BucketAlreadyOwnedByYou{}
	}
	m.buckets[name] = map[string][]byte{}
	if params.CreateBucketConfiguration != nil {
		m.regions[name] = string(params.CreateBucketConfiguration.LocationConstraint)
	}
	return &s3.CreateBucketOutput{}, nil
}

func (m *mockS3) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[*params.Bucket]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (m *mockS3) PutBucketEncryption(ctx context.Context, params *s3.PutBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule := params.ServerSideEncryptionConfiguration.Rules[0].ApplyServerSideEncryptionByDefault
	m.encryption[*params.Bucket] = string(rule.SSEAlgorithm) + "|" + sdkaws.ToString(rule.KMSMasterKeyID)
	return &s3.PutBucketEncryptionOutput{}, nil
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return nil, m.putErr
	}
	b, ok := m.buckets[*params.Bucket]
	if !ok {
		return nil, &types.NoSuchBucket{}
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	b[*params.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[*params.Bucket]
	if !ok {
		return nil, &types.NoSuchBucket{}
	}
	body, ok := b[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (m *mockS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buckets[*params.Bucket]; ok {
		if _, ok := b[*params.Key]; ok {
			return &s3.HeadObjectOutput{}, nil
		}
	}
	return nil, &types.NotFound{}
}

func (m *mockS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[*params.Bucket]
	if !ok {
		return nil, &types.NoSuchBucket{}
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: sdkaws.String(k)})
	}
	return out, nil
}

func (m *mockS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, *params.Key)
	if b, ok := m.buckets[*params.Bucket]; ok {
		delete(b, *params.Key)
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[*params.Bucket]
	if !ok {
		return nil, &types.NoSuchBucket{}
	}
	if len(b) > 0 {
		return nil, errors.New("BucketNotEmpty")
	}
	delete(m.buckets, *params.Bucket)
	return &s3.DeleteBucketOutput{}, nil
}
