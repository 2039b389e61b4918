package chat

import (
	"github.com/spf13/cobra"
)

func NewChatCommand() *cobra.Command {
	var (
		as    string
		peer  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		Args:  cobra.NoArgs,
		Example: `  picochat chat
  picochat chat --peer trinity
  picochat chat --as 665f1c2e9b1d`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return chatCmd(cmd.Context(), options{
				As:    as,
				Peer:  peer,
				Debug: debug,
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "Act as this user id instead of the stored login")
	cmd.Flags().StringVarP(&peer, "peer", "p", "", "Open the conversation with this contact on start")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
