package main

import (
	"context"
	"time"

	"cfnresources/awsutils"
	"cfnresources/config"
	"cfnresources/customresource"
	"cfnresources/resources"
	"cfnresources/timestreamutils"
	"cfnresources/utils"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

var handler *customresource.Handler

func init() {
	cfg := config.Load()
	logger := utils.MustLogger(cfg.LogLevel).Named("PopulateTable")

	awsCfg, err := awsutils.LoadConfig(context.TODO(), cfg.Aws)
	if err != nil {
		logger.Fatal("unable to load SDK config", zap.Error(err))
	}
	client := awsutils.CreateTimestreamClient(awsCfg, cfg.Aws)

	writer := timestreamutils.NewWriter(client, cfg.Timestream.DatabaseName, cfg.Timestream.TableName, logger)
	generator := timestreamutils.NewSampleGenerator(cfg.Timestream.SampleRegion, time.Now().UnixNano())
	populator := timestreamutils.NewPopulator(writer, generator, logger)

	handler = customresource.NewHandler(
		resources.NewTablePopulator(cfg, populator, logger),
		customresource.NewResponseSender(logger),
		customresource.WithLogger(logger),
		customresource.WithLegacyUpdate(cfg.SkipUpdateCallback),
	)
}

func main() {
	lambda.Start(handler.Handle)
}
