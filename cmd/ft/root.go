package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kraitsura/flowtree/pkg/diagram"
	"github.com/kraitsura/flowtree/pkg/export"
	"github.com/kraitsura/flowtree/pkg/ui"
	"github.com/kraitsura/flowtree/pkg/watcher"
)

func newRootCmd() *cobra.Command {
	a := &app{}
	var preview bool

	root := &cobra.Command{
		Use:           "ft",
		Short:         "Explore flow trees of numbered nodes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, true); err != nil {
				return err
			}
			defer a.close()
			return runTUI(cmd.Context(), a, preview)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to config.yaml (default $XDG_CONFIG_HOME/ft/config.yaml)")
	pf.StringVar(&a.dbPath, "db", "", "Path to the SQLite database")
	pf.StringVarP(&a.workspace, "workspace", "w", "", "Workspace id")
	pf.StringVar(&a.remote, "remote", "", "Base URL of an `ft serve` API to use instead of a local database")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")
	root.Flags().BoolVar(&preview, "preview", false, "Also serve the diagram in a browser")

	root.AddCommand(
		newTreeCmd(a),
		newDiagramCmd(a),
		newServeCmd(a),
		newPreviewCmd(a),
		newDoctorCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newAddCmd(a),
		newSetCmd(a),
		newRmCmd(a),
		newSnapshotCmd(a),
	)
	return root
}

func runTUI(ctx context.Context, a *app, preview bool) error {
	h, err := a.openStore()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	opts := ui.Options{
		Store:     h,
		Tracker:   a.openTracker(),
		Direction: a.cfg.Diagram.Direction,
		ASCII:     a.cfg.Explorer.ASCII,
		Title:     a.cfg.Store.Workspace,
		Logger:    a.logger,
	}
	if preview {
		ps := export.NewPreviewServer(a.cfg.Diagram.PreviewPort, a.logger)
		ps.SetTitle("ft · " + a.cfg.Store.Workspace)
		opts.Scheduler = diagram.NewScheduler(ps, a.logger)
		g.Go(func() error { return ps.Run(ctx, true) })
	}

	p := tea.NewProgram(ui.New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	refresh := func() { p.Send(ui.RefreshMsg{}) }

	switch {
	case h.Client != nil:
		g.Go(func() error {
			if err := h.Client.Subscribe(ctx, refresh); err != nil && !isCanceled(err) {
				a.logger.Warn("live updates unavailable", "error", err)
			}
			return nil
		})
	case h.DBPath != "":
		w := watcher.New(h.DBPath, refresh, watcher.Config{Logger: a.logger})
		if err := w.Start(ctx); err != nil {
			a.logger.Warn("not watching database", "error", err)
		} else {
			defer w.Close()
		}
	}

	_, runErr := p.Run()
	cancel()
	if err := g.Wait(); err != nil && !isCanceled(err) {
		a.logger.Warn("background task failed", "error", err)
	}
	if runErr != nil && !isCanceled(runErr) && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("explorer: %w", runErr)
	}
	return nil
}
