package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kraitsura/flowtree/pkg/diagram"
	"github.com/kraitsura/flowtree/pkg/export"
	"github.com/kraitsura/flowtree/pkg/server"
	"github.com/kraitsura/flowtree/pkg/store"
	"github.com/kraitsura/flowtree/pkg/watcher"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	var origins []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the node HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, false); err != nil {
				return err
			}
			defer a.close()
			if a.cfg.Store.Remote != "" {
				return errors.New("serve needs a local database; drop --remote")
			}
			h, err := a.openStore()
			if err != nil {
				return err
			}

			cfg := server.Config{
				Addr:           a.cfg.Server.Addr,
				AllowedOrigins: a.cfg.Server.AllowedOrigins,
				MutationRate:   a.cfg.Server.MutationRate,
				MutationBurst:  a.cfg.Server.MutationBurst,
				Logger:         a.logger,
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if len(origins) > 0 {
				cfg.AllowedOrigins = origins
			}
			db := h.SQLite
			srv := server.New(func(ws string) store.Store { return db.ForWorkspace(ws) }, cfg)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return srv.Run(ctx) })

			// Writes from other processes (the TUI, ft add) reach websocket
			// clients through the watcher.
			w := watcher.New(h.DBPath, srv.NotifyAll, watcher.Config{Logger: a.logger})
			if err := w.Start(ctx); err != nil {
				a.logger.Warn("not watching database", "error", err)
			} else {
				defer w.Close()
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8000)")
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "Allowed CORS origin (repeatable)")
	return cmd
}

func newPreviewCmd(a *app) *cobra.Command {
	var port int
	var noBrowser bool
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Serve a live browser preview of the diagram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, false); err != nil {
				return err
			}
			defer a.close()
			h, err := a.openStore()
			if err != nil {
				return err
			}

			if port == 0 {
				port = a.cfg.Diagram.PreviewPort
			}
			ps := export.NewPreviewServer(port, a.logger)
			ps.SetTitle("ft · " + a.cfg.Store.Workspace)
			sched := diagram.NewScheduler(ps, a.logger)

			g, ctx := errgroup.WithContext(cmd.Context())
			publish := func() {
				nodes, err := h.List(ctx)
				if err != nil {
					a.logger.Warn("snapshot load failed", "error", err)
					return
				}
				code := diagram.GenerateWith(nodes, diagram.Options{Direction: a.cfg.Diagram.Direction})
				sched.Submit(ctx, code, func(res diagram.Result) {
					a.logger.Debug("diagram published", "render_id", res.RenderID, "nodes", len(nodes))
				})
			}
			publish()

			g.Go(func() error { return ps.Run(ctx, !noBrowser) })
			switch {
			case h.Client != nil:
				g.Go(func() error {
					err := h.Client.Subscribe(ctx, publish)
					if err != nil && !isCanceled(err) {
						return fmt.Errorf("live updates: %w", err)
					}
					return nil
				})
			default:
				w := watcher.New(h.DBPath, publish, watcher.Config{Logger: a.logger})
				if err := w.Start(ctx); err != nil {
					return err
				}
				defer w.Close()
			}
			err = g.Wait()
			sched.Cancel()
			if isCanceled(err) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Port (default: first free port from 9000)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not open a browser")
	return cmd
}
