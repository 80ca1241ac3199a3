package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

var _ Backend = (*S3Backend)(nil)

// s3API is the part of *s3.Client the backend uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3API = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// deleteBatchSize is the S3 DeleteObjects limit.
const deleteBatchSize = 1000

// S3Options configures an S3Backend.
//
// Fields:
//   - User / Password: static credentials (MinIO root user and password).
//   - Bucket / Region / Endpoint: target bucket, region and base endpoint.
//   - Prefix: key prefix under which objects are stored, e.g. "objects".
type S3Options struct {
	User     string
	Password string
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// S3Backend stores chunks as individual keys "<prefix>/<id>/<index>.chunk"
// in an S3-compatible bucket.
type S3Backend struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Backend builds an S3 client from static credentials and a custom base
// endpoint, as used with MinIO.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.User,
			opts.Password,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3API(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Backend(client, opts.Bucket, opts.Prefix), nil
}

func newS3Backend(client s3API, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

func (b *S3Backend) Kind() models.BackendKind { return models.BackendObjectStore }

func (b *S3Backend) Location(objectID string) string {
	return b.objectPrefix(objectID)
}

func (b *S3Backend) objectPrefix(objectID string) string {
	return path.Join(b.prefix, objectID) + "/"
}

func (b *S3Backend) chunkKey(objectID string, index int64) string {
	return b.objectPrefix(objectID) + chunkName(index)
}

func (b *S3Backend) WriteChunk(ctx context.Context, objectID string, index int64, data []byte) error {
	if err := validateObjectID(objectID); err != nil {
		return err
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.chunkKey(objectID, index)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("put chunk %s/%d: %w", objectID, index, err)
	}
	return nil
}

func (b *S3Backend) ReadChunk(ctx context.Context, objectID string, index int64) ([]byte, error) {
	if err := validateObjectID(objectID); err != nil {
		return nil, err
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.chunkKey(objectID, index)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s/%d: %w", objectID, index, common.ErrChunkNotFound)
		}
		return nil, fmt.Errorf("get chunk %s/%d: %w", objectID, index, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read chunk body %s/%d: %w", objectID, index, err)
	}
	return data, nil
}

// listKeys walks every key under the object's prefix.
func (b *S3Backend) listKeys(ctx context.Context, objectID string, fn func(obj types.Object) error) error {
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.objectPrefix(objectID)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", objectID, err)
		}
		for _, obj := range page.Contents {
			if err := fn(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *S3Backend) Delete(ctx context.Context, objectID string) error {
	if err := validateObjectID(objectID); err != nil {
		return err
	}

	var batch []types.ObjectIdentifier
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete %s: %w", objectID, err)
		}
		if len(out.Errors) > 0 {
			return fmt.Errorf("delete %s: %d keys failed, first: %s", objectID, len(out.Errors), aws.ToString(out.Errors[0].Message))
		}
		batch = batch[:0]
		return nil
	}

	err := b.listKeys(ctx, objectID, func(obj types.Object) error {
		batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
		if len(batch) == deleteBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func (b *S3Backend) Size(ctx context.Context, objectID string) (int64, error) {
	if err := validateObjectID(objectID); err != nil {
		return 0, err
	}

	var total int64
	err := b.listKeys(ctx, objectID, func(obj types.Object) error {
		total += aws.ToInt64(obj.Size)
		return nil
	})
	return total, err
}

// Ping checks that the bucket is reachable with the configured credentials.
func (b *S3Backend) Ping(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	return err
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
