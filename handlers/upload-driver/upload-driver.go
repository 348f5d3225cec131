package main

import (
	"context"

	"cfnresources/awsutils"
	"cfnresources/config"
	"cfnresources/customresource"
	"cfnresources/driverutils"
	"cfnresources/resources"
	"cfnresources/utils"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

var handler *customresource.Handler

func init() {
	cfg := config.Load()
	logger := utils.MustLogger(cfg.LogLevel).Named("UploadDriver")

	awsCfg, err := awsutils.LoadConfig(context.TODO(), cfg.Aws)
	if err != nil {
		logger.Fatal("unable to load SDK config", zap.Error(err))
	}
	client := awsutils.CreateS3Client(awsCfg, cfg.Aws)

	handler = customresource.NewHandler(
		resources.NewDriverUploader(cfg, driverutils.NewDownloader(logger), client, logger),
		customresource.NewResponseSender(logger),
		customresource.WithLogger(logger),
		customresource.WithLegacyUpdate(cfg.SkipUpdateCallback),
	)
}

func main() {
	lambda.Start(handler.Handle)
}
