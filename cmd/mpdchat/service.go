package main

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/mpdagents/mpdchat/pkg/app"
)

// daemon adapts app.Run to the service manager's Start/Stop callbacks.
type daemon struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan error
}

func (d *daemon) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan error, 1)
	go func() {
		err := app.Run(ctx, d.params)
		if err != nil {
			if l, lerr := s.Logger(nil); lerr == nil {
				_ = l.Error(err)
			}
		}
		d.done <- err
	}()
	return nil
}

func (d *daemon) Stop(service.Service) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	return <-d.done
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service <action>",
		Short: "Manage mpdchat as a system service",
		Long: fmt.Sprintf(`Manage mpdchat as a system service. Actions: %s, run.
"run" is what the installed service executes.`, strings.Join(service.ControlAction[:], ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := args[0]
			params := runParams(cmd)
			if params.ConfigPath != "" {
				abs, err := filepath.Abs(params.ConfigPath)
				if err != nil {
					return err
				}
				params.ConfigPath = abs
			}

			svc, err := service.New(&daemon{params: params}, serviceConfig(params))
			if err != nil {
				return err
			}
			if action == "run" {
				return svc.Run()
			}
			if !slices.Contains(service.ControlAction[:], action) {
				return fmt.Errorf("unknown action %q", action)
			}
			if err := service.Control(svc, action); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
			return nil
		},
	}
	return cmd
}

// serviceConfig describes the unit. The installed command line re-enters
// "service run" with the same config and data paths.
func serviceConfig(params app.RunParams) *service.Config {
	args := []string{"service", "run"}
	if params.ConfigPath != "" {
		args = append(args, "--config", params.ConfigPath)
	}
	if params.DataDir != "" {
		args = append(args, "--data-dir", params.DataDir)
	}
	return &service.Config{
		Name:        "mpdchat",
		DisplayName: "mpdchat",
		Description: "Multi-persona chat agent",
		Arguments:   args,
	}
}
