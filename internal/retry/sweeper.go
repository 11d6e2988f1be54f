package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Dispatcher re-runs outbound delivery for a stored message.
type Dispatcher interface {
	Redispatch(ctx context.Context, messageID string) error
}

// Sweeper periodically claims due retries and redispatches them.
type Sweeper struct {
	logger     *slog.Logger
	queue      *Queue
	dispatcher Dispatcher
	interval   time.Duration
	cron       *cron.Cron
}

// NewSweeper creates a sweeper; intervalSeconds <= 0 selects 30 seconds.
func NewSweeper(queue *Queue, dispatcher Dispatcher, intervalSeconds int, log *slog.Logger) *Sweeper {
	if intervalSeconds <= 0 {
		intervalSeconds = 30
	}
	return &Sweeper{
		logger:     log.With(slog.String("service", "retry_sweeper")),
		queue:      queue,
		dispatcher: dispatcher,
		interval:   time.Duration(intervalSeconds) * time.Second,
	}
}

// Start schedules the sweep loop.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("schedule retry sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("retry sweeper started", slog.Duration("interval", s.interval))
	return nil
}

// Stop halts the sweep loop and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep processes one batch of due retries.
func (s *Sweeper) Sweep(ctx context.Context) {
	items, err := s.queue.ClaimDue(ctx, time.Now())
	if err != nil {
		s.logger.Error("retry sweep failed", slog.Any("error", err))
		return
	}
	for _, item := range items {
		err := s.dispatcher.Redispatch(ctx, item.MessageID)
		if err == nil {
			s.logger.Info("retry delivered",
				slog.String("message_id", item.MessageID), slog.Int("attempt", item.Attempts+1))
			continue
		}
		s.logger.Warn("retry dispatch failed",
			slog.String("message_id", item.MessageID),
			slog.Int("attempt", item.Attempts+1),
			slog.String("error", err.Error()))
		if qerr := s.queue.Enqueue(ctx, item.MessageID, item.Attempts+1, err); qerr != nil {
			s.logger.Error("retry re-enqueue failed",
				slog.String("message_id", item.MessageID), slog.Any("error", qerr))
		}
	}
}
