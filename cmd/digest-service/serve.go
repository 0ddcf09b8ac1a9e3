package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pribylovaa/go-news-digest/internal/config"
	httptransport "github.com/pribylovaa/go-news-digest/internal/transport/http"
	"github.com/pribylovaa/go-news-digest/internal/transport/http/handlers"
	"github.com/pribylovaa/go-news-digest/pkg/interceptors"
	"github.com/pribylovaa/go-news-digest/pkg/log"
)

// shutdownTimeout - сколько ждать завершения серверов и текущего цикла.
const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled cycles with the admin API and ops gRPC server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return &exitError{code: exitUsage, err: err}
			}

			lg := setupLogger(cfg.Env)
			slog.SetDefault(lg)
			lg.Info("starting digest-service", "env", cfg.Env)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := runServe(ctx, cfg, lg); err != nil {
				return &exitError{code: exitFailed, err: err}
			}
			return nil
		},
	}
}

// runServe поднимает HTTP и gRPC, запускает циклы по расписанию
// и ждёт отмены ctx или падения одного из серверов.
func runServe(ctx context.Context, cfg *config.Config, lg *slog.Logger) error {
	a, err := newApp(ctx, cfg, lg, prometheus.DefaultRegisterer)
	if err != nil {
		lg.Error("startup_failed", slog.String("err", err.Error()))
		return err
	}
	defer a.Close()

	// HTTP: пробы, /metrics и админ-API.
	router := httptransport.NewRouter(handlers.New(a.svc, a.Ready), httptransport.Options{
		Logger:    lg,
		Timeout:   cfg.Timeouts.Service,
		JWTSecret: cfg.Admin.JWTSecret,
		Issuer:    cfg.Admin.Issuer,
		Metrics:   promhttp.Handler(),
	})
	if cfg.Admin.JWTSecret == "" {
		lg.Warn("admin_auth_disabled")
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// gRPC: health + интерсепторы и метрики.
	grpc_prometheus.EnableHandlingTimeHistogram()

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.Recover(lg),
			interceptors.UnaryLoggingInterceptor(lg),
			interceptors.WithTimeout(cfg.Timeouts.Service),
			grpc_prometheus.UnaryServerInterceptor,
		),
		grpc.ChainStreamInterceptor(
			grpc_prometheus.StreamServerInterceptor,
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	// Рефлексия - только в local/dev.
	if cfg.Env == envLocal || cfg.Env == envDev {
		reflection.Register(grpcServer)
	}
	grpc_prometheus.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr())
	if err != nil {
		lg.Error("grpc_listen_failed",
			slog.String("addr", cfg.GRPC.Addr()),
			slog.String("err", err.Error()),
		)
		return err
	}

	serveErrCh := make(chan error, 2)

	go func() {
		lg.Info("http_listen_start", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()

	go func() {
		lg.Info("grpc_listen_start", slog.String("addr", cfg.GRPC.Addr()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErrCh <- err
		}
	}()

	// Циклы по расписанию живут, пока не отменён cyclesCtx.
	cyclesCtx, stopCycles := context.WithCancel(log.Into(ctx, lg))
	cyclesDone := make(chan struct{})
	go func() {
		defer close(cyclesDone)
		if err := a.svc.StartCycles(cyclesCtx); err != nil {
			lg.Error("cycles_start_failed", slog.String("err", err.Error()))
		}
	}()

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var serveErr error
	select {
	case <-ctx.Done():
		lg.Info("shutdown_requested")
	case serveErr = <-serveErrCh:
		lg.Error("serve_failed", slog.String("err", serveErr.Error()))
	}

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	stopCycles()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http_shutdown_failed", slog.String("err", err.Error()))
	}

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		lg.Info("grpc_stopped")
	case <-shutdownCtx.Done():
		lg.Warn("grpc_force_stop")
		grpcServer.Stop()
	}

	select {
	case <-cyclesDone:
	case <-shutdownCtx.Done():
		lg.Warn("cycle_still_running")
	}

	lg.Info("service_stopped")

	return serveErr
}
