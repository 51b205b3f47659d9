package commands

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/orbit/internal/config"
	"github.com/dohr-michael/orbit/internal/render"
	"github.com/dohr-michael/orbit/internal/secrets"
)

var envKeyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewKeysCommand returns the keys subcommand.
func NewKeysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Manage the local encryption key and sealed secrets",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the age key protecting the session and .env secrets",
				Action: runKeysInit,
			},
			{
				Name:      "set",
				Usage:     "Store an encrypted value in .env (prompted when omitted)",
				ArgsUsage: "<NAME> [value]",
				Action:    runKeysSet,
			},
		},
	}
}

func runKeysInit(_ context.Context, _ *cli.Command) error {
	sealer, err := secrets.OpenSealer(config.KeyPath())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s %s\n%s %s\n",
		render.MutedStyle.Render("key:      "), config.KeyPath(),
		render.MutedStyle.Render("recipient:"), sealer.Recipient())
	return nil
}

func runKeysSet(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().Get(0)
	if !envKeyRe.MatchString(name) {
		return fmt.Errorf("usage: orbit keys set <NAME> [value] (invalid name %q)", name)
	}
	value := cmd.Args().Get(1)
	if value == "" {
		v, err := readPassword(name + ": ")
		if err != nil {
			return err
		}
		value = v
	}
	if value == "" {
		return fmt.Errorf("empty value for %s", name)
	}

	sealer, err := secrets.OpenSealer(config.KeyPath())
	if err != nil {
		return err
	}
	if err := sealer.SetSealedEntry(config.DotenvPath(), name, value); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, render.SuccessStyle.Render(name+" sealed in "+config.DotenvPath()))
	return nil
}
