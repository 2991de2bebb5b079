package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kraitsura/flowtree/pkg/config"
	"github.com/kraitsura/flowtree/pkg/expansion"
	"github.com/kraitsura/flowtree/pkg/forest"
	"github.com/kraitsura/flowtree/pkg/store"
)

// app holds what every command needs after flags and config are resolved.
type app struct {
	configPath string
	dbPath     string
	workspace  string
	remote     string
	verbose    bool

	cfg     config.Config
	logger  *slog.Logger
	closers []io.Closer
}

func (a *app) load(cmd *cobra.Command, interactive bool) error {
	path := a.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.workspace != "" {
		cfg.Store.Workspace = a.workspace
	}
	if a.remote != "" {
		cfg.Store.Remote = a.remote
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg

	logger, closer, err := newLogger(cfg.Log, cmd.ErrOrStderr(), interactive)
	if err != nil {
		return err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.logger = logger
	return nil
}

// newLogger builds the slog handler from config. Interactive sessions only
// log to log.file so the alt screen stays intact.
func newLogger(lc config.LogConfig, stderr io.Writer, interactive bool) (*slog.Logger, io.Closer, error) {
	level, err := config.ParseLevel(lc.Level)
	if err != nil {
		return nil, nil, err
	}
	var w io.Writer = stderr
	var closer io.Closer
	switch {
	case lc.File != "":
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	case interactive:
		w = io.Discard
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h), closer, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.logger != nil {
			a.logger.Debug("close failed", "error", err)
		}
	}
	a.closers = nil
}

// storeHandle is an opened node store. DBPath is empty for remote stores.
type storeHandle struct {
	store.Store
	DBPath string
	SQLite *store.SQLite
	Client *store.Client
}

func (a *app) openStore() (*storeHandle, error) {
	if a.cfg.Store.Remote != "" {
		c, err := store.NewClient(a.cfg.Store.Remote, a.cfg.Store.Workspace)
		if err != nil {
			return nil, err
		}
		a.logger.Debug("using remote store", "url", a.cfg.Store.Remote, "workspace", c.Workspace())
		return &storeHandle{Store: c, Client: c}, nil
	}

	path, err := a.cfg.DiscoverDB(a.dbPath)
	if err != nil {
		return nil, err
	}
	s, err := store.OpenSQLite(path, store.Options{
		Driver:    a.cfg.Store.Driver,
		Workspace: a.cfg.Store.Workspace,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, s)
	a.logger.Debug("opened store", "path", path, "driver", a.cfg.Store.Driver, "workspace", s.Workspace())
	return &storeHandle{Store: s, DBPath: path, SQLite: s}, nil
}

// openTracker returns the expansion tracker for the configured backend.
// Backends that fail to open degrade to in-memory state.
func (a *app) openTracker() *expansion.Tracker {
	ws := a.cfg.Store.Workspace
	var st expansion.StateStore
	switch a.cfg.State.Backend {
	case config.StateMemory:
		st = expansion.NewMemoryStore()
	case config.StateBadger:
		b, err := expansion.OpenBadger(expansion.BadgerConfig{
			Path:      a.cfg.StatePath(ws),
			Workspace: ws,
			Logger:    a.logger,
		})
		if err != nil {
			a.logger.Warn("expansion state store unavailable, not persisting", "backend", "badger", "error", err)
			st = expansion.NewMemoryStore()
			break
		}
		a.closers = append(a.closers, b)
		st = b
	default:
		st = expansion.NewFileStore(a.cfg.StatePath(ws))
	}
	return expansion.NewTracker(st, a.cfg.Explorer.VisibleDepth, a.logger)
}

// allExpanded marks every node with children as expanded.
func allExpanded(f *forest.Forest) expansion.Set {
	s := expansion.NewSet()
	for id, n := range f.Lookup {
		if f.HasChildren(n) {
			s[id] = struct{}{}
		}
	}
	return s
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
