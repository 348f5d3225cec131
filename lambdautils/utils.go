package lambdautils

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/pkg/errors"
)

type InvokeAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// FunctionError is returned when the handler itself failed, which for these
// handlers means the CloudFormation callback could not be delivered.
type FunctionError struct {
	FunctionName string
	Kind         string
	Payload      string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("function %s failed (%s): %s", e.FunctionName, e.Kind, e.Payload)
}

// InvokeHandlerSync sends a lifecycle event to a deployed handler and waits
// for it to finish.
func InvokeHandlerSync(ctx context.Context, client InvokeAPI, functionName string, event cfn.Event) error {
	eventJson, err := json.Marshal(event)
	if err != nil {
		return err
	}

	response, err := client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(functionName),
		InvocationType: types.InvocationTypeRequestResponse,
		Payload:        eventJson,
	})
	if err != nil {
		return errors.Wrapf(err, "invoke %s", functionName)
	}

	if response.FunctionError != nil {
		return &FunctionError{
			FunctionName: functionName,
			Kind:         aws.ToString(response.FunctionError),
			Payload:      string(response.Payload),
		}
	}
	return nil
}

// InvokeHandlerAsync queues the event; the outcome is only visible through the
// callback and the function logs.
func InvokeHandlerAsync(ctx context.Context, client InvokeAPI, functionName string, event cfn.Event) error {
	eventJson, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(functionName),
		InvocationType: types.InvocationTypeEvent,
		Payload:        eventJson,
	})
	return errors.Wrapf(err, "invoke %s", functionName)
}
