package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/bladekit/internal/config"
	"github.com/conneroisu/bladekit/internal/logging"
	"github.com/conneroisu/bladekit/pkg/blade"
	viewerrors "github.com/conneroisu/bladekit/pkg/errors"
)

// loadConfig reads the merged viper settings into a Config and builds the
// command's logger. Configuration warnings, such as a missing view
// directory, are logged and do not fail the command.
func loadConfig(cmd *cobra.Command) (*config.Config, *logging.ViewLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	result := config.ValidateConfigWithDetails(cfg)
	if result.HasErrors() {
		return nil, nil, fmt.Errorf("invalid configuration:\n%s", result.String())
	}

	logger := newLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if result.HasWarnings() {
		ctx := commandContext(cmd)
		for _, warning := range result.Warnings {
			logger.Warn(ctx, nil, warning.Message,
				"field", warning.Field,
				"value", warning.Value,
				"suggestions", warning.Suggestions)
		}
	}
	return cfg, logger, nil
}

func newLogger(level, format string, output io.Writer) *logging.ViewLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(level),
		Format:    format,
		Output:    output,
		Component: "cli",
	})
}

// newViews builds the view bootstrap described by cfg.
func newViews(cfg *config.Config, logger logging.Logger) *blade.View {
	opts := []blade.Option{
		blade.WithLogger(logger),
		blade.WithExtensions(cfg.Views.Extensions...),
	}
	if cfg.Views.Django {
		opts = append(opts, blade.WithDjangoEngine())
	}
	return blade.New(cfg.Views.Paths, cfg.Views.CacheDir, opts...)
}

// shutdownViews stops every service the bootstrap's container has built.
func shutdownViews(ctx context.Context, views *blade.View, logger logging.Logger) {
	if err := views.Container().Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.Error(ctx, err, "Failed to shut down view services")
	}
}

// reportError logs a command failure with fields that match its error type.
// Warnings stay visible even when the configured level is error.
func reportError(ctx context.Context, output io.Writer, err error) {
	level := logging.ParseLevel(viper.GetString("log.level"))
	if level > logging.LevelWarn {
		level = logging.LevelWarn
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    viper.GetString("log.format"),
		Output:    output,
		Component: "cli",
	})
	viewerrors.NewErrorHandler(logger).Handle(ctx, err)
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd == nil {
		return context.Background()
	}
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
