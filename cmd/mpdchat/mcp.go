package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpdagents/mpdchat/internal/mcpserver"
	"github.com/mpdagents/mpdchat/pkg/app"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the chat tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				srv := mcpserver.New(rt.Conversation, version, rt.Logger.With("component", "mcp"))
				return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
			})
		},
	}
}
