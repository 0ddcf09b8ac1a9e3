// digest-service собирает дайджест из RSS/Atom-лент: режим serve
// (циклы по расписанию, админ-API, служебный gRPC) и разовый цикл once.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// Коды завершения процесса.
const (
	exitOK           = 0
	exitFailed       = 1
	exitUsage        = 2
	exitNoNewContent = 3
	exitBusy         = 4
)

// exitError несёт код завершения из подкоманды в main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// rootOptions - общие флаги подкоманд.
type rootOptions struct {
	configPath string
}

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения.
	_ = godotenv.Load()

	os.Exit(execute(os.Args[1:]))
}

// execute выполняет команду и переводит результат в код завершения.
func execute(args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			slog.Error("command_failed", slog.String("err", ee.err.Error()))
		}
		return ee.code
	}

	fmt.Fprintln(os.Stderr, "error:", err)
	return exitUsage
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "digest-service",
		Short:         "News digest builder",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newOnceCommand(opts))

	return cmd
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
