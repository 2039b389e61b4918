package history

import (
	"github.com/spf13/cobra"
)

func NewHistoryCommand() *cobra.Command {
	var (
		as    string
		limit int
		query string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "history <peer-id>",
		Short: "Print the stored conversation with a peer",
		Args:  cobra.ExactArgs(1),
		Example: `  picochat history 665f1c2e9b1d
  picochat history 665f1c2e9b1d --limit 20
  picochat history 665f1c2e9b1d --grep lunch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return historyCmd(cmd.Context(), cmd.OutOrStdout(), options{
				As:    as,
				Peer:  args[0],
				Limit: limit,
				Query: query,
				Debug: debug,
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "Act as this user id instead of the stored login")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Only print the last n messages")
	cmd.Flags().StringVar(&query, "grep", "", "Only print messages containing this text")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
