package scheduler

import (
	"context"
	"time"
)

type payoutResumer interface {
	RunOnce(ctx context.Context) int
}

// ResumeJob periodically re-drives stale approved payouts.
type ResumeJob struct {
	Resumer  payoutResumer
	Every    time.Duration
	Deadline time.Duration
}

func (j *ResumeJob) Name() string { return "payout_resumer" }

func (j *ResumeJob) Interval() time.Duration {
	if j.Every <= 0 {
		return time.Minute
	}
	return j.Every
}

func (j *ResumeJob) Run(ctx context.Context) {
	if j.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Deadline)
		defer cancel()
	}
	j.Resumer.RunOnce(ctx)
}
