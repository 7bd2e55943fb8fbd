package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand hosting the HTTP API.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves archived PDFs and records over HTTP",
		Long: `Starts the HTTP API: health probes, Prometheus metrics, artifact
downloads and record listing. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a App) error {
			addr := fmt.Sprintf(":%d", a.Config().Server.Port)
			if err := a.APIServer().ListenAndServe(cmd.Context(), addr); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		}),
	}
	cmd.Flags().Int("port", 8080, "listen port")
	return cmd
}
