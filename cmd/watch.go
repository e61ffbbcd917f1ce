package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/bladekit/internal/logging"
	"github.com/conneroisu/bladekit/internal/watcher"
	"github.com/conneroisu/bladekit/pkg/blade"
	"github.com/conneroisu/bladekit/pkg/view"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Recompile directive templates when they change",
		Long: `Watch the view paths and recompile .blade.html files as they are saved.
Compile errors are reported and watching continues. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			views := newViews(cfg, logger)

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer shutdownViews(ctx, views, logger)

			if _, _, err := compileAll(ctx, views, logger, false); err != nil {
				logger.Error(ctx, err, "Initial compile failed")
			}

			fw, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
			if err != nil {
				return fmt.Errorf("failed to create file watcher: %w", err)
			}
			defer fw.Stop()

			fw.AddFilter(watcher.ExtensionFilter(views.Finder().Extensions()...))
			fw.AddFilter(watcher.ExcludeDirFilter(views.CachePath()))
			fw.AddFilter(watcher.NoHiddenFilter)
			fw.AddHandler(func(events []watcher.ChangeEvent) error {
				return recompile(ctx, views, logger, cmd.OutOrStdout(), events)
			})

			for _, path := range views.Paths() {
				if err := fw.AddRecursive(path); err != nil {
					return fmt.Errorf("failed to watch %s: %w", path, err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s\n", strings.Join(views.Paths(), ", "))
			fw.Start(ctx)
			<-ctx.Done()
			return nil
		},
	}

	return cmd
}

// recompile handles one debounced batch of changes. Compile errors are
// reported, not returned, so one broken template does not stop the watch.
func recompile(ctx context.Context, views *blade.View, logger logging.Logger, out io.Writer, events []watcher.ChangeEvent) error {
	structural := false
	for _, event := range events {
		switch event.Type {
		case watcher.EventTypeCreated, watcher.EventTypeDeleted, watcher.EventTypeRenamed:
			structural = true
		}
		if event.Type == watcher.EventTypeDeleted || !strings.HasSuffix(event.Path, "."+view.BladeExtension) {
			continue
		}

		if err := views.Compiler().Compile(event.Path); err != nil {
			logger.Error(ctx, err, "Compile failed", "path", event.Path)
			fmt.Fprintf(out, "error %s: %v\n", event.Path, err)
			continue
		}
		fmt.Fprintf(out, "compiled %s\n", event.Path)
	}

	if structural {
		views.FlushFinderCache()
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newWatchCmd())
}
