package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/orbit/internal/config"
)

// Version is stamped at build time.
var Version = "dev"

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "orbit",
		Usage:   "Tasks, intel drops and the oracle, synchronized across devices",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
			&cli.StringFlag{
				Name:    "remote",
				Usage:   "Remote store DSN (memory://, sqlite://, postgres://, http://)",
				Sources: cli.EnvVars("ORBIT_REMOTE"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format: table, json or yaml",
				Value:   "table",
			},
		},
		Commands: []*cli.Command{
			NewLoginCommand(),
			NewRegisterCommand(),
			NewLogoutCommand(),
			NewWhoamiCommand(),
			NewTasksCommand(),
			NewAskCommand(),
			NewSOSCommand(),
			NewHistoryCommand(),
			NewIntelCommand(),
			NewWatchCommand(),
			NewServeCommand(),
			NewStatusCommand(),
			NewKeysCommand(),
			NewMCPServeCommand(),
		},
	}
}
