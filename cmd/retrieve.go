package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRetrieveCmd creates the 'retrieve' subcommand.
func newRetrieveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve <content-id>",
		Short: "Exports a stored PDF to a local directory",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a App) error {
			path, err := a.Retriever().Retrieve(cmd.Context(), args[0], a.Config().Retrieve.OutputDir)
			if err != nil {
				return fmt.Errorf("retrieve %s: %w", args[0], err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		}),
	}
	cmd.Flags().String("output-dir", "", "directory to write the PDF into (default from config)")
	return cmd
}
