package commands

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"

	orbitmcp "github.com/dohr-michael/orbit/internal/mcp"
)

// NewMCPServeCommand returns the mcp-serve subcommand.
func NewMCPServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp-serve",
		Usage: "Expose tasks, oracle and intel as MCP tools (stdio)",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name:      "filter",
				UsageText: "Group (tasks, oracle, intel) or tool name to expose (empty = all)",
			},
		},
		Action: runMCPServe,
	}
}

func runMCPServe(ctx context.Context, cmd *cli.Command) error {
	// stdout carries the MCP stdio transport; openApp logs to stderr
	a, err := openApp(ctx, cmd, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer a.Close()

	filter := cmd.StringArg("filter")
	slog.Debug("starting MCP server", "filter", filter, "tools", orbitmcp.ToolNames(filter))

	server := orbitmcp.NewMCPServer(a.store, Version, filter)
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}
