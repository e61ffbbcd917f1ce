package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/bladekit/internal/logging"
	"github.com/conneroisu/bladekit/pkg/blade"
	"github.com/conneroisu/bladekit/pkg/view"
)

func newCompileCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Precompile directive templates into the cache directory",
		Long: `Compile every .blade.html file under the view paths into the cache
directory. Templates whose compiled copy is newer than the source are skipped
unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			views := newViews(cfg, logger)

			compiled, skipped, err := compileAll(commandContext(cmd), views, logger, force)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Compiled %d templates (%d up to date) into %s\n",
				compiled, skipped, views.CachePath())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "recompile templates that are up to date")

	return cmd
}

// compileAll compiles every directive template below the view paths and
// namespace directories. The run is timed as the "compile" operation.
func compileAll(ctx context.Context, views *blade.View, logger *logging.ViewLogger, force bool) (compiled, skipped int, err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	op := logger.StartOperation("compile")
	defer func() {
		if err != nil {
			op.EndWithError(ctx, err)
			return
		}
		op.End(ctx)
	}()

	dirs := views.Finder().Paths()
	for _, hinted := range views.Finder().Hints() {
		dirs = append(dirs, hinted...)
	}

	files := views.Filesystem()
	compiler := views.Compiler()
	for _, dir := range dirs {
		if !files.IsDirectory(dir) {
			logger.Warn(ctx, nil, "Skipping missing view directory", "dir", dir)
			continue
		}

		paths, walkErr := files.AllFiles(dir)
		if walkErr != nil {
			return compiled, skipped, walkErr
		}
		for _, path := range paths {
			if !strings.HasSuffix(path, "."+view.BladeExtension) {
				continue
			}
			if !force && !compiler.IsExpired(path) {
				skipped++
				continue
			}
			if compileErr := compiler.Compile(path); compileErr != nil {
				return compiled, skipped, compileErr
			}
			logger.Debug(ctx, "Compiled template", "path", path)
			compiled++
		}
	}
	return compiled, skipped, nil
}

func init() {
	rootCmd.AddCommand(newCompileCmd())
}
