package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vietddude/tableadmin/internal/control"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the health and metrics server until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, app *control.App) error {
			slog.Info("tableadmin started",
				"config", cfgPath,
				"instance", app.Admin().InstanceName(),
			)
			<-ctx.Done()
			slog.Info("Received signal, shutting down...")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
