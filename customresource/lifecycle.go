// Package customresource maps CloudFormation lifecycle events onto resource
// actions and reports the outcome through the custom-resource callback.
//
// Create and Delete always produce exactly one callback. Update produces one
// SUCCESS callback, unknown request types one FAILED callback; in legacy mode
// both are only logged, which leaves the stack waiting for its timeout.
package customresource

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/cfn"
	"go.uber.org/zap"
)

// Resource is implemented by each custom resource. A nil error reports
// SUCCESS with the returned message; any error reports FAILED.
type Resource interface {
	Create(ctx context.Context, event cfn.Event) (string, error)
	Update(ctx context.Context, event cfn.Event) (string, error)
	Delete(ctx context.Context, event cfn.Event) (string, error)
}

// NoUpdate is embedded by resources without update-time work.
type NoUpdate struct{}

func (NoUpdate) Update(context.Context, cfn.Event) (string, error) {
	return "Nothing to do on update", nil
}

type Handler struct {
	resource           Resource
	sender             Sender
	logger             *zap.Logger
	skipUpdateCallback bool
}

type Option func(*Handler)

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithLegacyUpdate restores the older behaviour of sending no callback for
// Update and unknown request types.
func WithLegacyUpdate(skip bool) Option {
	return func(h *Handler) {
		h.skipUpdateCallback = skip
	}
}

func NewHandler(resource Resource, sender Sender, opts ...Option) *Handler {
	h := &Handler{resource: resource, sender: sender, logger: zap.NewNop()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handle is the Lambda entry point. The only error it returns is a failed
// callback, which fails the invocation.
func (h *Handler) Handle(ctx context.Context, event cfn.Event) error {
	logger := h.logger.With(
		zap.String("request_type", string(event.RequestType)),
		zap.String("request_id", event.RequestID),
		zap.String("logical_resource_id", event.LogicalResourceID),
	)
	logger.Info("received lifecycle event", zap.String("stack_id", event.StackID))

	switch event.RequestType {
	case cfn.RequestCreate:
		return h.run(ctx, logger, event, h.resource.Create)
	case cfn.RequestDelete:
		return h.run(ctx, logger, event, h.resource.Delete)
	case cfn.RequestUpdate:
		if h.skipUpdateCallback {
			logger.Error("unknown operation, no response sent")
			return nil
		}
		return h.run(ctx, logger, event, h.resource.Update)
	default:
		logger.Error("unknown operation")
		if h.skipUpdateCallback {
			return nil
		}
		return h.respond(ctx, logger, event, cfn.StatusFailed, "Unknown operation: "+string(event.RequestType))
	}
}

func (h *Handler) run(ctx context.Context, logger *zap.Logger, event cfn.Event, action func(context.Context, cfn.Event) (string, error)) error {
	message, err := safeRun(ctx, event, action)
	if err != nil {
		logger.Error("exception encountered", zap.String("kind", string(KindOf(err))), zap.Error(err))
		return h.respond(ctx, logger, event, cfn.StatusFailed, FailureMessage(err))
	}
	return h.respond(ctx, logger, event, cfn.StatusSuccess, message)
}

// safeRun turns a panicking action into an internal error so that the
// callback is still sent.
func safeRun(ctx context.Context, event cfn.Event, action func(context.Context, cfn.Event) (string, error)) (message string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(KindInternal, string(event.RequestType), fmt.Errorf("panic: %v", r))
		}
	}()
	return action(ctx, event)
}

func (h *Handler) respond(ctx context.Context, logger *zap.Logger, event cfn.Event, status cfn.StatusType, message string) error {
	logger.Info("sending response to cloudformation", zap.String("status", string(status)), zap.String("message", message))
	if err := h.sender.Send(ctx, event, status, ResponseData{Message: message}); err != nil {
		logger.Error("could not send response to cloudformation", zap.Error(err))
		return err
	}
	return nil
}
