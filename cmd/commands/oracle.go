package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/orbit/internal/render"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Send a message to the oracle and print its reply",
		ArgsUsage: "<message>",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			if _, err := a.requireSession(); err != nil {
				return err
			}
			message := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("usage: orbit ask <message>")
			}
			reply, err := a.store.AskOracle(ctx, message)
			if err != nil {
				return err
			}
			return a.print(reply, render.Message(reply, render.DefaultWidth))
		}),
	}
}

// NewSOSCommand returns the sos subcommand.
func NewSOSCommand() *cli.Command {
	return &cli.Command{
		Name:  "sos",
		Usage: "Broadcast an urgent SOS into the conversation",
		Action: withApp(func(_ context.Context, _ *cli.Command, a *app) error {
			if _, err := a.requireSession(); err != nil {
				return err
			}
			msg, err := a.store.TriggerSOS()
			if err != nil {
				return err
			}
			return a.print(msg, render.Message(msg, render.DefaultWidth))
		}),
	}
}

// NewHistoryCommand returns the history subcommand.
func NewHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show the oracle conversation",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Show only the last n messages (0 = all)",
			},
		},
		Action: withApp(func(_ context.Context, cmd *cli.Command, a *app) error {
			snap, err := a.requireSession()
			if err != nil {
				return err
			}
			chat := snap.Chat
			if n := int(cmd.Int("limit")); n > 0 && n < len(chat) {
				chat = chat[len(chat)-n:]
			}
			return a.print(chat, render.Chat(chat, render.DefaultWidth))
		}),
	}
}
