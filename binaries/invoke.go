package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"time"

	"cfnresources/awsutils"
	"cfnresources/config"
	"cfnresources/lambdautils"
	"cfnresources/utils"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// invoke sends a hand-made lifecycle event to a deployed handler, for trying
// out a handler outside of a stack operation. CloudFormation never sees the
// result: point -response-url at any endpoint accepting a PUT, e.g. a
// pre-signed S3 URL.
//
//	invoke -function EmptyBucket -response-url https://... Delete

var requestTypes = []cfn.RequestType{cfn.RequestCreate, cfn.RequestUpdate, cfn.RequestDelete}

type invokeOptions struct {
	FunctionName       string
	ResponseURL        string
	StackID            string
	LogicalResourceID  string
	PhysicalResourceID string
	Async              bool
	Timeout            time.Duration
}

func main() {
	opts := invokeOptions{}
	flag.StringVar(&opts.FunctionName, "function", "", "name or ARN of the handler function")
	flag.StringVar(&opts.ResponseURL, "response-url", "", "URL the handler PUTs its response to")
	flag.StringVar(&opts.StackID, "stack-id", "manual-invoke", "stack id placed in the event")
	flag.StringVar(&opts.LogicalResourceID, "logical-id", "ManualInvoke", "logical resource id placed in the event")
	flag.StringVar(&opts.PhysicalResourceID, "physical-id", "", "physical resource id for Update and Delete")
	flag.BoolVar(&opts.Async, "async", false, "queue the event instead of waiting for the handler")
	flag.DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	cfg := config.Load()
	logger := utils.MustLogger(cfg.LogLevel)
	defer logger.Sync()

	event, err := buildEvent(opts, flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	awsCfg, err := awsutils.LoadConfig(ctx, cfg.Aws)
	if err != nil {
		logger.Fatal("unable to load SDK config", zap.Error(err))
	}
	client := awsutils.CreateLambdaClient(awsCfg, cfg.Aws)

	logger.Info("invoking handler",
		zap.String("function", opts.FunctionName),
		zap.String("request_type", string(event.RequestType)),
		zap.String("request_id", event.RequestID))
	if opts.Async {
		err = lambdautils.InvokeHandlerAsync(ctx, client, opts.FunctionName, event)
	} else {
		err = lambdautils.InvokeHandlerSync(ctx, client, opts.FunctionName, event)
	}
	if err != nil {
		logger.Fatal("invocation failed", zap.Error(err))
	}
	logger.Info("invocation completed")
}

func buildEvent(opts invokeOptions, args []string) (cfn.Event, error) {
	if opts.FunctionName == "" {
		return cfn.Event{}, fmt.Errorf("-function is required")
	}
	if opts.ResponseURL == "" {
		return cfn.Event{}, fmt.Errorf("-response-url is required")
	}
	if len(args) != 1 || !slices.Contains(requestTypes, cfn.RequestType(args[0])) {
		return cfn.Event{}, fmt.Errorf("expected exactly one request type among %v, got %v", requestTypes, args)
	}
	requestType := cfn.RequestType(args[0])
	if requestType != cfn.RequestCreate && opts.PhysicalResourceID == "" {
		return cfn.Event{}, fmt.Errorf("-physical-id is required for %s", requestType)
	}

	return cfn.Event{
		RequestType:        requestType,
		RequestID:          uuid.NewString(),
		ResponseURL:        opts.ResponseURL,
		ResourceType:       "Custom::ManualInvoke",
		StackID:            opts.StackID,
		LogicalResourceID:  opts.LogicalResourceID,
		PhysicalResourceID: opts.PhysicalResourceID,
	}, nil
}
