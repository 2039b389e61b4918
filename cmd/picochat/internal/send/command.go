package send

import (
	"strings"

	"github.com/spf13/cobra"
)

func NewSendCommand() *cobra.Command {
	var (
		as    string
		file  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "send <peer-id> [text...]",
		Short: "Send one message and exit",
		Args:  cobra.MinimumNArgs(1),
		Example: `  picochat send 665f1c2e9b1d "see you at noon"
  picochat send 665f1c2e9b1d --file ./report.pdf "Q3 numbers"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCmd(cmd.Context(), cmd.OutOrStdout(), options{
				As:    as,
				Peer:  args[0],
				Text:  strings.Join(args[1:], " "),
				File:  file,
				Debug: debug,
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "Act as this user id instead of the stored login")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Attach a file; the text becomes its caption")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}
