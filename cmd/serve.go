package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/bladekit/internal/server"
)

// PreviewServerService is the container name the preview server is
// published under.
const PreviewServerService = "preview.server"

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Preview views in the browser with live reload",
		Long: `Start a development server that renders views at /view/<name>,
lists them at /, and reloads open pages when a view changes.

Query parameters and a JSON request body become view data:
  http://localhost:8080/view/users.profile?name=Ada`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			views := newViews(cfg, logger)
			defer shutdownViews(ctx, views, logger)

			// Published so shutting down the container stops the server too.
			srv := server.New(cfg, views, logger)
			views.Container().RegisterInstance(PreviewServerService, srv)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().String("host", "", "host to bind (default localhost)")
	cmd.Flags().IntP("port", "p", 0, "port to listen on (default 8080)")
	AddFlagValidation(cmd.Flags(), "port", ValidatePort)

	bindFlags(cmd.Flags(), map[string]string{
		"host": "server.host",
		"port": "server.port",
	})

	return cmd
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
