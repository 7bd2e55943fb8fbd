package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand, one full crawl-and-archive pass.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [base-url]",
		Short: "Crawls the search results and archives every article PDF",
		Long: `Walks the configured search endpoint page by page from the start page,
downloads the PDF of every article found and stores it with a metadata record.
Articles that cannot be fetched or stored are logged and skipped.
A base-url argument takes precedence over --base-url and the config file.`,
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{baseURLArgAnnotation: "true"},
		RunE: withApp(func(cmd *cobra.Command, _ []string, a App) error {
			summary, err := a.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("archive run: %w", err)
			}
			a.Logger().Info("run command finished",
				zap.Int("discovered", summary.Discovered),
				zap.Int("archived", summary.Archived),
				zap.Int("fetch_failed", summary.FetchFailed),
				zap.Int("store_failed", summary.StoreFailed),
				zap.String("termination", string(summary.Termination.Kind)),
			)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "archived %d of %d articles (%s after %d pages)\n",
				summary.Archived, summary.Discovered, summary.Termination.Kind, summary.Termination.Pages)
			return err
		}),
	}
	cmd.Flags().String("base-url", "", "search URL prefix; the page number is appended")
	cmd.Flags().Int("start-page", 1, "first result page to visit")
	cmd.Flags().Int("max-pages", 0, "stop after this many pages (0 = until results run out)")
	cmd.Flags().Int("workers", 1, "concurrent article fetchers, each with its own navigator")
	return cmd
}
