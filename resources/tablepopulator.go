package resources

import (
	"context"

	"cfnresources/config"
	"cfnresources/customresource"
	"cfnresources/timestreamutils"

	"github.com/aws/aws-lambda-go/cfn"
	"go.uber.org/zap"
)

// TablePopulator seeds a Timestream table with synthetic host metrics when
// the stack is created. Records are left in place on delete; they go away
// with the table.
type TablePopulator struct {
	customresource.NoUpdate
	cfg       *config.Config
	populator *timestreamutils.Populator
	logger    *zap.Logger
}

func NewTablePopulator(cfg *config.Config, populator *timestreamutils.Populator, logger *zap.Logger) *TablePopulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TablePopulator{cfg: cfg, populator: populator, logger: logger}
}

func (r *TablePopulator) Create(ctx context.Context, _ cfn.Event) (string, error) {
	if err := r.cfg.RequireTablePopulate(); err != nil {
		return "", customresource.NewError(customresource.KindConfig, "populate table", err)
	}
	count, err := r.cfg.Timestream.Count()
	if err != nil {
		return "", customresource.NewError(customresource.KindConfig, "populate table", err)
	}
	if err := r.populator.Populate(ctx, count); err != nil {
		return "", customresource.NewError(customresource.KindTimeseries, "populate table", err)
	}
	return "About to populate the Timestream DB", nil
}

func (r *TablePopulator) Delete(context.Context, cfn.Event) (string, error) {
	return "Deleting the custom resource - nothing to do", nil
}
