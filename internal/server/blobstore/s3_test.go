package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
)

type fakeS3 struct {
	objects   map[string][]byte
	putErr    error
	headErr   error
	createErr error
	created   bool
	lastOpts  *s3.Options
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = true
	return &s3.CreateBucketOutput{}, nil
}

func withFakeClient(t *testing.T, fake *fakeS3) {
	t.Helper()
	origLoad, origNew := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		o := &s3.Options{}
		for _, fn := range optFns {
			fn(o)
		}
		fake.lastOpts = o
		return fake
	}
}

func TestNewS3Store_AppliesEndpoint(t *testing.T) {
	fake := newFakeS3()
	withFakeClient(t, fake)

	_, err := NewS3Store(context.Background(), S3Config{Bucket: "records", Endpoint: "http://127.0.0.1:9000/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.lastOpts.BaseEndpoint == nil || *fake.lastOpts.BaseEndpoint != "http://127.0.0.1:9000/" {
		t.Fatalf("endpoint not applied: %+v", fake.lastOpts.BaseEndpoint)
	}
	if !fake.lastOpts.UsePathStyle {
		t.Fatalf("expected path-style addressing")
	}
}

func TestNewS3Store_ConfigError(t *testing.T) {
	withFakeClient(t, newFakeS3())
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no region")
	}

	if _, err := NewS3Store(context.Background(), S3Config{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestS3Store_PutGetDelete(t *testing.T) {
	fake := newFakeS3()
	withFakeClient(t, fake)
	ctx := context.Background()

	s, err := NewS3Store(ctx, S3Config{Bucket: "records"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Put(ctx, "opendes:well:1/1", []byte(`{"data":{}}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "opendes:well:1/1")
	if err != nil || string(got) != `{"data":{}}` {
		t.Fatalf("get: %q, %v", got, err)
	}
	if err := s.Delete(ctx, "opendes:well:1/1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "opendes:well:1/1"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestS3Store_PutFailureIsStorageFailure(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("slow down")
	withFakeClient(t, fake)

	s, _ := NewS3Store(context.Background(), S3Config{Bucket: "records"})
	err := s.Put(context.Background(), "k", nil)
	if !errors.Is(err, common.ErrStorageFailure) {
		t.Fatalf("want ErrStorageFailure, got %v", err)
	}
}

func TestS3Store_EnsureBucket(t *testing.T) {
	fake := newFakeS3()
	withFakeClient(t, fake)
	s, _ := NewS3Store(context.Background(), S3Config{Bucket: "records"})

	if err := s.EnsureBucket(context.Background()); err != nil || fake.created {
		t.Fatalf("existing bucket must not be created: created=%v err=%v", fake.created, err)
	}

	fake.headErr = errors.New("not found")
	if err := s.EnsureBucket(context.Background()); err != nil || !fake.created {
		t.Fatalf("missing bucket must be created: created=%v err=%v", fake.created, err)
	}

	fake.createErr = &types.BucketAlreadyOwnedByYou{}
	if err := s.EnsureBucket(context.Background()); err != nil {
		t.Fatalf("already owned must be ok: %v", err)
	}
}
