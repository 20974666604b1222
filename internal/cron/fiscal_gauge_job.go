package cron

import (
	"context"
	"fmt"

	"github.com/tillworks/tillpoint/pkg/enums"
	"github.com/tillworks/tillpoint/pkg/logger"
	"github.com/tillworks/tillpoint/pkg/metrics"
)

// FiscalGaugeJobParams configure the fiscal status gauge refresh.
type FiscalGaugeJobParams struct {
	Logger     *logger.Logger
	Repository fiscalGaugeRepo
	Metrics    *metrics.FiscalMetrics
}

type fiscalGaugeRepo interface {
	CountByStatus(ctx context.Context) (map[enums.FiscalStatus]int64, error)
}

// NewFiscalGaugeJob refreshes the per-status invoice gauges so queue depth
// and failure backlog are visible without querying the database.
func NewFiscalGaugeJob(params FiscalGaugeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("fiscal repository required")
	}
	if params.Metrics == nil {
		return nil, fmt.Errorf("fiscal metrics required")
	}
	return &fiscalGaugeJob{
		logg:    params.Logger,
		repo:    params.Repository,
		metrics: params.Metrics,
	}, nil
}

type fiscalGaugeJob struct {
	logg    *logger.Logger
	repo    fiscalGaugeRepo
	metrics *metrics.FiscalMetrics
}

func (j *fiscalGaugeJob) Name() string { return "fiscal-status-gauges" }

func (j *fiscalGaugeJob) Run(ctx context.Context) error {
	counts, err := j.repo.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count fiscal statuses: %w", err)
	}

	// Statuses absent from the result reset to zero so a drained queue
	// does not freeze the gauge at its last value.
	for _, status := range []enums.FiscalStatus{
		enums.FiscalStatusNotRequired,
		enums.FiscalStatusPending,
		enums.FiscalStatusQueued,
		enums.FiscalStatusSubmitted,
		enums.FiscalStatusSuccess,
		enums.FiscalStatusFailed,
	} {
		j.metrics.SetStatusCount(status.String(), float64(counts[status]))
	}

	j.logg.Info(j.logg.WithField(ctx, "statuses", len(counts)), "fiscal gauges refreshed")
	return nil
}
