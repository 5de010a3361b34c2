package reconcile

import (
	"context"
	"log/slog"
	"time"
)

const lockKey = "walletd:reconcile"

// Locker provides cross-instance mutual exclusion.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Job runs reconciliation periodically. With a Locker only one instance runs
// a pass at a time.
type Job struct {
	reconciler *Reconciler
	locker     Locker
	interval   time.Duration
	autoFix    bool
	logger     *slog.Logger
}

// NewJob builds a periodic reconciliation job. locker may be nil.
func NewJob(r *Reconciler, locker Locker, interval time.Duration, autoFix bool, logger *slog.Logger) *Job {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = r.logger
	}
	return &Job{reconciler: r, locker: locker, interval: interval, autoFix: autoFix, logger: logger}
}

// Run blocks until ctx is canceled.
func (j *Job) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("reconcile run failed", slog.Any("error", err))
			}
		}
	}
}

// RunOnce performs a single pass. It returns ran=false when another instance
// holds the lock.
func (j *Job) RunOnce(ctx context.Context) (ran bool, err error) {
	if j.locker != nil {
		release, ok, err := j.locker.Acquire(ctx, lockKey, j.interval)
		if err != nil {
			return false, err
		}
		if !ok {
			j.logger.Debug("reconcile skipped, lock held elsewhere")
			return false, nil
		}
		defer release()
	}

	var report Report
	if j.autoFix {
		report, err = j.reconciler.ReconcileAllAndFix(ctx)
	} else {
		report, err = j.reconciler.ReconcileAll(ctx)
	}
	if err != nil {
		return true, err
	}
	j.logger.Info("reconcile finished",
		slog.Int("checked", report.Checked),
		slog.Int("mismatches", len(report.Mismatches)),
		slog.Bool("auto_fix", j.autoFix),
	)
	return true, nil
}
