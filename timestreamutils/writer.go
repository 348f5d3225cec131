package timestreamutils

import (
	"context"
	"time"

	"cfnresources/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ResourceNotFoundRetryDelay is the pause before the single retry of a write
// that hit a missing database or table, which usually means it is still being
// created by the same stack.
const ResourceNotFoundRetryDelay = 500 * time.Millisecond

type WriteRecordsAPI interface {
	WriteRecords(ctx context.Context, params *timestreamwrite.WriteRecordsInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error)
}

func IsResourceNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}

type Writer struct {
	client         WriteRecordsAPI
	database       string
	table          string
	logger         *zap.Logger
	retrierFactory func() *utils.Retrier[*timestreamwrite.WriteRecordsOutput]
	sleep          utils.Sleeper
}

func NewWriter(client WriteRecordsAPI, database string, table string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("database", database), zap.String("table", table))
	return &Writer{
		client:   client,
		database: database,
		table:    table,
		logger:   logger,
		retrierFactory: utils.NewPolicyRetrierFactory[*timestreamwrite.WriteRecordsOutput](logger, utils.RetryRule{
			Name:       "resource-not-found",
			Matches:    IsResourceNotFound,
			MaxRetries: 1,
			Delay:      ResourceNotFoundRetryDelay,
		}),
		sleep: utils.ContextSleep,
	}
}

// WithSleeper replaces the wait used between retries.
func (w *Writer) WithSleeper(sleep utils.Sleeper) *Writer {
	w.sleep = sleep
	return w
}

// Write stores one sample. Rejected records are logged and do not fail the
// write; a missing resource is retried once; anything else is returned.
func (w *Writer) Write(ctx context.Context, record SampleRecord) error {
	input := record.WriteInput(w.database, w.table)
	output, err := w.retrierFactory().WithSleeper(w.sleep).DoWithReturn(ctx, func() (*timestreamwrite.WriteRecordsOutput, error) {
		return w.client.WriteRecords(ctx, input)
	})
	if err == nil {
		if output != nil && output.RecordsIngested != nil {
			w.logger.Debug("records written", zap.Int32("ingested", output.RecordsIngested.Total))
		}
		return nil
	}

	var rejected *types.RejectedRecordsException
	if errors.As(err, &rejected) {
		w.logRejected(rejected)
		return nil
	}

	w.logger.Error("write records failed", zap.Error(err))
	return errors.Wrap(err, "write records")
}

func (w *Writer) logRejected(err *types.RejectedRecordsException) {
	w.logger.Error("rejected records", zap.String("message", aws.ToString(err.Message)))
	for _, rr := range err.RejectedRecords {
		fields := []zap.Field{
			zap.Int32("record_index", rr.RecordIndex),
			zap.String("reason", aws.ToString(rr.Reason)),
		}
		if rr.ExistingVersion != nil {
			fields = append(fields, zap.Int64("existing_version", *rr.ExistingVersion))
		}
		w.logger.Error("rejected record", fields...)
	}
}

type Populator struct {
	writer    *Writer
	generator *SampleGenerator
	logger    *zap.Logger
}

func NewPopulator(writer *Writer, generator *SampleGenerator, logger *zap.Logger) *Populator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Populator{writer: writer, generator: generator, logger: logger}
}

// Populate writes count samples sequentially, one call per sample, and stops
// at the first write that fails.
func (p *Populator) Populate(ctx context.Context, count int) error {
	p.logger.Info("going to populate records", zap.Int("count", count))
	for i := 0; i < count; i++ {
		if err := p.writer.Write(ctx, p.generator.Next()); err != nil {
			return errors.Wrapf(err, "record %d of %d", i+1, count)
		}
	}
	return nil
}
