package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pribylovaa/go-news-digest/internal/config"
	"github.com/pribylovaa/go-news-digest/internal/pipeline"
	"github.com/pribylovaa/go-news-digest/internal/service"
	"github.com/pribylovaa/go-news-digest/pkg/log"
)

func newOnceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single digest cycle and exit",
		Long: `Run exactly one digest cycle and exit.

Exit codes:
  0  digest produced
  1  cycle failed
  2  configuration or startup error
  3  no new content
  4  another cycle is in progress`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}

			lg := setupLogger(cfg.Env)
			slog.SetDefault(lg)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if code := runOnce(ctx, cfg, lg); code != exitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

// runOnce выполняет один цикл и возвращает код завершения.
func runOnce(ctx context.Context, cfg *config.Config, lg *slog.Logger) int {
	a, err := newApp(ctx, cfg, lg, nil)
	if err != nil {
		lg.Error("startup_failed", slog.String("err", err.Error()))
		return exitUsage
	}
	defer a.Close()

	if len(a.sources) == 0 {
		lg.Error("startup_failed", slog.String("err", errNoSources.Error()))
		return exitUsage
	}

	res, err := a.svc.RunCycle(log.Into(ctx, lg))
	if err != nil {
		lg.Error("cycle_not_started", slog.String("err", err.Error()))
		if errors.Is(err, service.ErrCycleInProgress) {
			return exitBusy
		}
		return exitFailed
	}

	attrs := []any{
		slog.String("cycle_id", res.CycleID),
		slog.String("kind", string(res.Kind)),
		slog.String("stage", res.Stage.String()),
		slog.Int("included", res.Counters.Included),
		slog.Duration("dur", res.Duration),
	}
	if res.Err != nil {
		attrs = append(attrs, slog.String("err", res.Err.Error()))
	}
	if res.Handle.Location != "" {
		attrs = append(attrs, slog.String("location", res.Handle.Location))
	}
	lg.Info("cycle_result", attrs...)

	return exitCode(res)
}

// exitCode отображает исход цикла в код завершения.
func exitCode(res pipeline.CycleResult) int {
	switch res.Kind {
	case pipeline.ResultDigest:
		return exitOK
	case pipeline.ResultNoNewContent:
		return exitNoNewContent
	default:
		return exitFailed
	}
}
