package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newRecordsCmd creates the 'records' subcommand, which prints archive
// records as JSON lines, newest first.
func newRecordsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Lists archive records as JSON lines",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a App) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			records, err := a.Records().ListRecords(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list records: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, rec := range records {
				if err := enc.Encode(rec); err != nil {
					return fmt.Errorf("write record: %w", err)
				}
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records (0 = all)")
	return cmd
}
