// Package observability provides logging and Prometheus metrics.
package observability

import (
	"log/slog"
	"os"

	"github.com/claymoreai/claymore/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields. Call
// once at startup and install with slog.SetDefault.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(h).With(
		slog.String("service", "claymore"),
		slog.String("env", cfg.AppEnv),
	)
}
