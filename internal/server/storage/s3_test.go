package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory bucket returning at most pageSize keys per listing.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	deletes  int
	putErr   error
	headErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, pageSize: 2}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	for _, o := range in.Delete.Objects {
		delete(f.objects, aws.ToString(o.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	// continuation tokens are the last key returned, as S3 resumes by key order
	start := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		start = sort.SearchStrings(keys, tok)
		if start < len(keys) && keys[start] == tok {
			start++
		}
	}
	end := start + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(f.objects[k])))})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end-1])
	}
	return out, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestS3Backend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	b := newS3Backend(fake, "vault", "objects")

	for i := int64(0); i < 5; i++ {
		require.NoError(t, b.WriteChunk(ctx, "obj1", i, bytes.Repeat([]byte{byte(i)}, 10)))
	}
	require.NoError(t, b.WriteChunk(ctx, "obj2", 0, []byte("other")))

	assert.Contains(t, fake.objects, "objects/obj1/00000003.chunk")
	assert.Equal(t, "objects/obj1/", b.Location("obj1"))
	assert.Equal(t, models.BackendObjectStore, b.Kind())

	got, err := b.ReadChunk(ctx, "obj1", 3)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{3}, 10), got)

	size, err := b.Size(ctx, "obj1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), size, "size sums every page")

	require.NoError(t, b.Delete(ctx, "obj1"))
	_, err = b.ReadChunk(ctx, "obj1", 0)
	assert.ErrorIs(t, err, common.ErrChunkNotFound)

	_, err = b.ReadChunk(ctx, "obj2", 0)
	require.NoError(t, err, "other objects untouched")
}

func TestS3Backend_DeleteBatches(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.pageSize = 500
	b := newS3Backend(fake, "vault", "")

	for i := int64(0); i < deleteBatchSize+5; i++ {
		fake.objects[b.chunkKey("big", i)] = []byte{1}
	}

	require.NoError(t, b.Delete(ctx, "big"))
	assert.Empty(t, fake.objects)
	assert.Equal(t, 2, fake.deletes)
}

func TestS3Backend_Errors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.putErr = errors.New("connection reset")
	fake.headErr = errors.New("forbidden")
	b := newS3Backend(fake, "vault", "objects")

	err := b.WriteChunk(ctx, "obj", 0, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	assert.Error(t, b.Ping(ctx))
	assert.Error(t, b.WriteChunk(ctx, "../x", 0, nil))
}

func TestNewS3Backend_UsesSeams(t *testing.T) {
	origLoad, origNew := loadDefaultAWSConfig, newS3API
	t.Cleanup(func() { loadDefaultAWSConfig, newS3API = origLoad, origNew })

	fake := newFakeS3()
	var opts s3.Options
	newS3API = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		for _, fn := range optFns {
			fn(&opts)
		}
		return fake
	}

	b, err := NewS3Backend(context.Background(), S3Options{
		User: "admin", Password: "pw", Bucket: "vault", Region: "us-east-1",
		Endpoint: "http://127.0.0.1:9000", Prefix: "objects",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)
	assert.Same(t, fake, b.client.(*fakeS3))

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	_, err = NewS3Backend(context.Background(), S3Options{})
	require.Error(t, err)
}

func TestIsS3NotFound(t *testing.T) {
	assert.True(t, isS3NotFound(&types.NoSuchKey{}))
	assert.True(t, isS3NotFound(&types.NotFound{}))
	assert.False(t, isS3NotFound(errors.New("timeout")))
}
