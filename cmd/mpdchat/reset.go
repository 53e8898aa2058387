package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpdagents/mpdchat/pkg/app"
)

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete stored conversations",
		Long: `Delete stored conversations. With --thread and --persona only that
thread is removed; with --all every thread is removed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			thread, _ := cmd.Flags().GetString("thread")
			personaID, _ := cmd.Flags().GetString("persona")
			all, _ := cmd.Flags().GetBool("all")
			if all == (thread != "") {
				return errors.New("pass either --all or --thread")
			}
			return withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				var (
					n   int
					err error
				)
				if all {
					n, err = rt.Conversation.Reset(ctx)
				} else {
					if personaID == "" {
						personaID = rt.Conversation.DefaultPersonaID()
					}
					n, err = rt.Conversation.ResetThread(ctx, thread, personaID)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d thread(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().String("thread", "", "Thread id to delete")
	cmd.Flags().String("persona", "", "Persona of the thread (default: the configured default)")
	cmd.Flags().Bool("all", false, "Delete every thread")
	return cmd
}
