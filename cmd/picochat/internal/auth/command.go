package auth

import (
	"github.com/spf13/cobra"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the chat server login",
		Example: `  picochat auth login
  picochat auth login --email neo@example.com
  picochat auth status
  picochat auth logout`,
	}

	var email, password string
	loginCommand := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return loginCmd(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), email, password)
		},
	}
	loginCommand.Flags().StringVar(&email, "email", "", "Account email (prompted when empty)")
	loginCommand.Flags().StringVar(&password, "password", "", "Account password (prompted when empty)")

	logoutCommand := &cobra.Command{
		Use:   "logout",
		Short: "Log out and remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return logoutCmd(cmd.Context(), cmd.OutOrStdout())
		},
	}

	statusCommand := &cobra.Command{
		Use:   "status",
		Short: "Show the stored login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return statusCmd(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(loginCommand, logoutCommand, statusCommand)
	return cmd
}
