package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/penwyp/go-trace-project/internal/application/workspace"
	"github.com/penwyp/go-trace-project/internal/server"
	"github.com/penwyp/go-trace-project/internal/util"
)

func (a *app) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the project folder structure",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := workspace.Open(a.workspaceConfig())
			if err != nil {
				return err
			}
			defer ws.Close()

			if err := ws.Init(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized project %s in %s\n",
				ws.Project().Label(), ws.Config().ProjectDir)
			return nil
		},
	}
}

// signalContext is cancelled on interrupt or termination.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *app) newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the project tree in sync with disk",
		Long: `Watches the project folder and refreshes the tree once changes settle.
The tree is reprinted after every refresh unless --quiet is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.workspaceConfig()
			cfg.Debounce = a.v.GetDuration("debounce")
			ws, err := workspace.Open(cfg)
			if err != nil {
				return err
			}
			defer ws.Close()
			if err := ws.Init(); err != nil {
				return err
			}

			quiet := a.v.GetBool("quiet")
			if !quiet {
				if err := a.printTree(cmd, ws); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return ws.Watch(ctx, func() {
				if quiet {
					return
				}
				if err := a.printTree(cmd, ws); err != nil {
					util.LogError("Failed to print tree: " + err.Error())
				}
			})
		},
	}
	cmd.Flags().Duration("debounce", 0, "Delay between the last change and the refresh (default 500ms)")
	cmd.Flags().BoolP("quiet", "q", false, "Do not print the tree after refreshes")
	return cmd
}

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the project tree over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := workspace.Open(a.workspaceConfig())
			if err != nil {
				return err
			}
			defer ws.Close()
			if err := ws.Init(); err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			g, gCtx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.NewServer(ws).Run(gCtx, a.v.GetString("addr"))
			})
			if a.v.GetBool("watch") {
				g.Go(func() error {
					return ws.Watch(gCtx, nil)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().Bool("watch", true, "Refresh the tree when the project folder changes")
	return cmd
}
