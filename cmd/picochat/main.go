// PicoChat - terminal client for one-to-one chat
// License: MIT
//
// Copyright (c) 2026 PicoChat contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/picochat/cmd/picochat/internal"
	"github.com/tinyland-inc/picochat/cmd/picochat/internal/auth"
	"github.com/tinyland-inc/picochat/cmd/picochat/internal/chat"
	"github.com/tinyland-inc/picochat/cmd/picochat/internal/history"
	"github.com/tinyland-inc/picochat/cmd/picochat/internal/send"
	"github.com/tinyland-inc/picochat/cmd/picochat/internal/version"
	"github.com/tinyland-inc/picochat/pkg/logger"
)

func NewPicochatCommand() *cobra.Command {
	short := fmt.Sprintf("%s picochat - terminal chat client v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "picochat",
		Short:   short,
		Example: "picochat chat",
	}

	cmd.AddCommand(
		chat.NewChatCommand(),
		auth.NewAuthCommand(),
		history.NewHistoryCommand(),
		send.NewSendCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewPicochatCommand()
	err := cmd.Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
