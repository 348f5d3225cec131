package resources

import (
	"context"

	"cfnresources/config"
	"cfnresources/customresource"
	"cfnresources/s3utils"

	"github.com/aws/aws-lambda-go/cfn"
	"go.uber.org/zap"
)

// BucketEmptier empties the target bucket when the stack is deleted, so that
// CloudFormation can remove the bucket itself.
type BucketEmptier struct {
	customresource.NoUpdate
	cfg    *config.Config
	bucket *s3utils.Bucket
	logger *zap.Logger
}

func NewBucketEmptier(cfg *config.Config, client s3utils.Client, logger *zap.Logger) *BucketEmptier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BucketEmptier{
		cfg:    cfg,
		bucket: s3utils.NewBucket(client, cfg.Bucket, logger),
		logger: logger,
	}
}

func (r *BucketEmptier) Create(context.Context, cfn.Event) (string, error) {
	return "Nothing to do on create", nil
}

func (r *BucketEmptier) Delete(ctx context.Context, _ cfn.Event) (string, error) {
	if err := r.cfg.RequireBucketEmpty(); err != nil {
		return "", customresource.NewError(customresource.KindConfig, "empty bucket", err)
	}
	if _, err := r.bucket.Empty(ctx); err != nil {
		return "", customresource.NewError(customresource.KindStorage, "empty bucket", err)
	}
	return "Emptying the S3 Bucket: " + r.bucket.Name(), nil
}
