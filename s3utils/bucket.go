package s3utils

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DeleteObjects accepts at most this many keys per call.
const maxKeysPerDelete = 1000

type BucketAPI interface {
	s3.ListObjectsV2APIClient
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Client bundles everything the resources need from S3.
type Client interface {
	BucketAPI
	manager.UploadAPIClient
}

type Bucket struct {
	client   Client
	uploader *manager.Uploader
	name     string
	logger   *zap.Logger
}

func NewBucket(client Client, name string, logger *zap.Logger) *Bucket {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bucket{
		client:   client,
		uploader: manager.NewUploader(client),
		name:     name,
		logger:   logger.With(zap.String("bucket", name)),
	}
}

func (b *Bucket) Name() string {
	return b.name
}

// Empty deletes every current object of the bucket, one bulk delete per
// listed page, and returns how many objects were removed.
func (b *Bucket) Empty(ctx context.Context) (int, error) {
	b.logger.Info("about to delete the files in the bucket")
	deleted := 0
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.name),
		MaxKeys: aws.Int32(maxKeysPerDelete),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, errors.Wrapf(err, "list objects of %s", b.name)
		}
		if len(page.Contents) == 0 {
			continue
		}
		identifiers := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, object := range page.Contents {
			identifiers = append(identifiers, types.ObjectIdentifier{Key: object.Key})
		}
		count, err := b.deleteBatch(ctx, identifiers)
		deleted += count
		if err != nil {
			return deleted, err
		}
	}
	b.logger.Info("bucket emptied", zap.Int("deleted", deleted))
	return deleted, nil
}

func (b *Bucket) deleteBatch(ctx context.Context, identifiers []types.ObjectIdentifier) (int, error) {
	output, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(b.name),
		Delete: &types.Delete{Objects: identifiers, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return 0, errors.Wrapf(err, "delete objects of %s", b.name)
	}
	if len(output.Errors) > 0 {
		failures := make([]string, 0, len(output.Errors))
		for _, e := range output.Errors {
			failures = append(failures, fmt.Sprintf("%s (%s)", aws.ToString(e.Key), aws.ToString(e.Code)))
			b.logger.Error("could not delete object",
				zap.String("key", aws.ToString(e.Key)),
				zap.String("code", aws.ToString(e.Code)),
				zap.String("reason", aws.ToString(e.Message)))
		}
		return len(identifiers) - len(output.Errors), fmt.Errorf("delete objects of %s: %d keys failed: %s",
			b.name, len(output.Errors), strings.Join(failures, ", "))
	}
	return len(identifiers), nil
}

// UploadFile uploads the local file at path under key. A missing file is
// reported as an error satisfying errors.Is(err, os.ErrNotExist).
func (b *Bucket) UploadFile(ctx context.Context, path string, key string) error {
	b.logger.Info("about to upload file", zap.String("path", path), zap.String("key", key))
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()

	_, err = b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return errors.Wrapf(err, "upload %s to %s/%s", path, b.name, key)
	}
	b.logger.Info("upload successful", zap.String("key", key))
	return nil
}

func (b *Bucket) DeleteObject(ctx context.Context, key string) error {
	b.logger.Info("about to delete object", zap.String("key", key))
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "delete %s/%s", b.name, key)
	}
	return nil
}
