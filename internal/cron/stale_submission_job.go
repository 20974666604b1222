package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/tillworks/tillpoint/pkg/logger"
)

const defaultStaleClaimAge = 15 * time.Minute

// StaleSubmissionJobParams configure the stale fiscal claim reaper.
type StaleSubmissionJobParams struct {
	Logger     *logger.Logger
	Repository staleSubmissionRepo
	ClaimAge   time.Duration
}

type staleSubmissionRepo interface {
	ExpireStaleClaims(ctx context.Context, olderThan time.Time) (int64, error)
}

// NewStaleSubmissionJob fails invoices whose fiscal claim outlived the
// stale window. A worker that died between claiming and recording the
// outcome leaves such rows behind; their real outcome is unknown, so they
// go to failed for an operator retry.
func NewStaleSubmissionJob(params StaleSubmissionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("fiscal repository required")
	}
	claimAge := params.ClaimAge
	if claimAge <= 0 {
		claimAge = defaultStaleClaimAge
	}
	return &staleSubmissionJob{
		logg:     params.Logger,
		repo:     params.Repository,
		claimAge: claimAge,
		now:      time.Now,
	}, nil
}

type staleSubmissionJob struct {
	logg     *logger.Logger
	repo     staleSubmissionRepo
	claimAge time.Duration
	now      func() time.Time
}

func (j *staleSubmissionJob) Name() string { return "stale-fiscal-submissions" }

func (j *staleSubmissionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.claimAge)
	expired, err := j.repo.ExpireStaleClaims(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire stale submissions: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"claim_age":    j.claimAge.String(),
		"rows_expired": expired,
	})
	j.logg.Info(logCtx, "stale fiscal claims marked failed")
	return nil
}
