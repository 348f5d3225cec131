package customresource

import (
	"context"
	"time"

	"cfnresources/utils"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ResponseData struct {
	Message string `json:"message"`
}

// Sender delivers the terminal status of an invocation to CloudFormation.
type Sender interface {
	Send(ctx context.Context, event cfn.Event, status cfn.StatusType, data ResponseData) error
}

// ResponseSender PUTs a cfn.Response to the pre-signed ResponseURL of the
// event. Transient failures are retried with exponential backoff.
type ResponseSender struct {
	logger         *zap.Logger
	retrierFactory func() *utils.Retrier[struct{}]
}

func NewResponseSender(logger *zap.Logger) *ResponseSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseSender{
		logger:         logger,
		retrierFactory: utils.NewExponentialRetrierFactory[struct{}](logger, 3, 200*time.Millisecond, 0.1, 2*time.Second),
	}
}

func (s *ResponseSender) Send(ctx context.Context, event cfn.Event, status cfn.StatusType, data ResponseData) error {
	response := cfn.NewResponse(&event)
	response.Status = status
	response.PhysicalResourceID = PhysicalResourceID(event)
	response.Reason = reason(status, data.Message)
	response.Data = map[string]interface{}{"message": data.Message}

	_, err := s.retrierFactory().DoWithReturn(ctx, func() (struct{}, error) {
		return struct{}{}, response.Send()
	})
	if err != nil {
		return NewError(KindCallback, "send response", err)
	}
	s.logger.Debug("response sent", zap.String("status", string(status)), zap.String("physical_resource_id", response.PhysicalResourceID))
	return nil
}

// PhysicalResourceID keeps the id CloudFormation already knows. New resources
// are named after the log stream of the invocation that created them.
func PhysicalResourceID(event cfn.Event) string {
	if event.PhysicalResourceID != "" {
		return event.PhysicalResourceID
	}
	if lambdacontext.LogStreamName != "" {
		return lambdacontext.LogStreamName
	}
	return uuid.NewString()
}

func reason(status cfn.StatusType, message string) string {
	details := "See the details in CloudWatch Log Stream: " + lambdacontext.LogStreamName
	if status == cfn.StatusFailed && message != "" {
		return message + ". " + details
	}
	return details
}
