package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/go-news-digest/internal/pipeline"
	"github.com/pribylovaa/go-news-digest/pkg/log"
)

// RunCycle запускает один цикл, если никто другой его сейчас не выполняет.
//
// Второй вызов в том же процессе и вызов в другой реплике (через Locker)
// получают ErrCycleInProgress. Всё остальное, включая провал цикла,
// отражается в возвращаемом CycleResult.
func (s *Service) RunCycle(ctx context.Context) (pipeline.CycleResult, error) {
	const op = "service.RunCycle"

	if !s.running.CompareAndSwap(false, true) {
		return pipeline.CycleResult{}, fmt.Errorf("%s: %w", op, ErrCycleInProgress)
	}
	defer s.running.Store(false)

	lg := log.From(ctx)

	lease, ok, err := s.locker.TryAcquire(ctx)
	if err != nil {
		return pipeline.CycleResult{}, fmt.Errorf("%s: acquire lock: %w: %w", op, ErrUnavailable, err)
	}
	if !ok {
		lg.Info("cycle_lock_busy", slog.String("op", op))
		return pipeline.CycleResult{}, fmt.Errorf("%s: %w", op, ErrCycleInProgress)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			lg.Warn("cycle_lock_release_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}()

	if s.opts.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CycleTimeout)
		defer cancel()
	}

	res := s.cycles.RunCycle(ctx, s.opts.Sources)
	s.last.Store(&res)
	s.reportSize()

	return res, nil
}

// StartCycles запускает цикл сразу и затем каждые Options.Interval.
// После каждого цикла вытесняются ключи старше Options.Retention.
// Останавливается по ctx.
func (s *Service) StartCycles(ctx context.Context) error {
	const op = "service.StartCycles"

	if len(s.opts.Sources) == 0 {
		return fmt.Errorf("%s: no sources configured", op)
	}
	if s.opts.Interval <= 0 {
		return fmt.Errorf("%s: interval must be > 0: %w", op, ErrInvalidArgument)
	}

	lg := log.From(ctx)
	lg.Info("schedule_start",
		slog.String("op", op),
		slog.Int("sources", len(s.opts.Sources)),
		slog.Duration("interval", s.opts.Interval),
	)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			lg.Info("schedule_stop", slog.String("op", op))
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick - плановый цикл и вытеснение устаревших ключей.
func (s *Service) tick(ctx context.Context) {
	const op = "service.tick"

	lg := log.From(ctx)

	res, err := s.RunCycle(ctx)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		lg.Info("schedule_tick_skipped", slog.String("op", op))
	case err != nil:
		lg.Warn("schedule_tick_error",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	default:
		lg.Info("schedule_tick_done",
			slog.String("op", op),
			slog.String("result", string(res.Kind)),
			slog.String("stage", res.Stage.String()),
		)
	}

	if s.opts.Retention <= 0 || ctx.Err() != nil {
		return
	}

	if _, err := s.EvictOlderThan(ctx, s.opts.Retention); err != nil {
		lg.Warn("schedule_evict_error",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}
}
