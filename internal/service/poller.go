package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pageza/reelkitchen/backend/internal/metrics"
)

const (
	pollBatchSize   = 25
	pollConcurrency = 4
)

// Poller refreshes processing submissions in the background
type Poller struct {
	submissions *SubmissionService
	interval    time.Duration
	maxAge      time.Duration
	metrics     *metrics.Metrics
	now         func() time.Time
	logger      *zap.Logger
}

// NewPoller creates a Poller that ticks every interval and fails
// submissions older than maxAge
func NewPoller(submissions *SubmissionService, interval, maxAge time.Duration, m *metrics.Metrics, log *zap.Logger) *Poller {
	return &Poller{
		submissions: submissions,
		interval:    interval,
		maxAge:      maxAge,
		metrics:     m,
		now:         time.Now,
		logger:      log.Named("poller"),
	}
}

// Run polls until ctx is cancelled
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Poller started",
		zap.Duration("interval", p.interval),
		zap.Duration("max_age", p.maxAge),
	)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopped")
			return
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("Poll tick failed", zap.Error(err))
			}
		}
	}
}

// Tick expires stale submissions and refreshes one batch of due ones
func (p *Poller) Tick(ctx context.Context) error {
	now := p.now()
	if p.maxAge > 0 {
		expired, err := p.submissions.FailStale(ctx, now.Add(-p.maxAge))
		if err != nil {
			return err
		}
		if expired > 0 {
			p.logger.Info("Expired stale submissions", zap.Int64("count", expired))
		}
	}

	due, err := p.submissions.DueForPoll(ctx, now.Add(-p.interval), pollBatchSize)
	if err != nil {
		return err
	}
	p.metrics.PollBatch(len(due))
	if len(due) == 0 {
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(pollConcurrency)
	for _, sub := range due {
		id := sub.ID
		eg.Go(func() error {
			// One failing upstream call must not cancel the rest of the batch.
			if _, err := p.submissions.Refresh(egCtx, id); err != nil {
				p.logger.Warn("Failed to refresh submission", zap.String("submission_id", id.String()), zap.Error(err))
			}
			return nil
		})
	}
	return eg.Wait()
}
