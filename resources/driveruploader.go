package resources

import (
	"context"
	"os"

	"cfnresources/config"
	"cfnresources/customresource"
	"cfnresources/driverutils"
	"cfnresources/s3utils"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DriverUploader stages the Timestream JDBC driver in the target bucket on
// create and removes it on delete.
type DriverUploader struct {
	customresource.NoUpdate
	cfg        *config.Config
	downloader *driverutils.Downloader
	bucket     *s3utils.Bucket
	logger     *zap.Logger
}

func NewDriverUploader(cfg *config.Config, downloader *driverutils.Downloader, client s3utils.Client, logger *zap.Logger) *DriverUploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DriverUploader{
		cfg:        cfg,
		downloader: downloader,
		bucket:     s3utils.NewBucket(client, cfg.Bucket, logger),
		logger:     logger,
	}
}

func (r *DriverUploader) Create(ctx context.Context, _ cfn.Event) (string, error) {
	if err := r.cfg.RequireDriverUpload(); err != nil {
		return "", customresource.NewError(customresource.KindConfig, "prepare driver", err)
	}
	driver := r.cfg.Driver
	path := driver.ScratchPath()

	if _, err := r.downloader.Download(ctx, driver.URL(), path); err != nil {
		var scratchErr *driverutils.ScratchError
		if errors.As(err, &scratchErr) {
			return "", customresource.NewError(customresource.KindScratch, "download driver", err)
		}
		return "", customresource.NewError(customresource.KindDownload, "download driver", err)
	}

	err := r.bucket.UploadFile(ctx, path, driver.FileName)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Logged only: the create still reports SUCCESS.
		r.logger.Error("the file was not found", zap.String("path", path), zap.Error(err))
	case err != nil:
		return "", customresource.NewError(customresource.KindStorage, "upload driver", err)
	}
	return "About to get the Timestream JDBC Driver", nil
}

func (r *DriverUploader) Delete(ctx context.Context, _ cfn.Event) (string, error) {
	if err := r.cfg.RequireDriverUpload(); err != nil {
		return "", customresource.NewError(customresource.KindConfig, "delete driver", err)
	}
	if err := r.bucket.DeleteObject(ctx, r.cfg.Driver.FileName); err != nil {
		return "", customresource.NewError(customresource.KindStorage, "delete driver", err)
	}
	return "Deleting the custom resource", nil
}
