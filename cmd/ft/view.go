package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kraitsura/flowtree/pkg/analysis"
	"github.com/kraitsura/flowtree/pkg/diagram"
	"github.com/kraitsura/flowtree/pkg/expansion"
	"github.com/kraitsura/flowtree/pkg/explorer"
	"github.com/kraitsura/flowtree/pkg/export"
	"github.com/kraitsura/flowtree/pkg/forest"
	"github.com/kraitsura/flowtree/pkg/model"
)

// snapshotRows loads the nodes and renders rows with the session's expansion
// state, or with everything expanded when all is set.
func snapshotRows(cmd *cobra.Command, a *app, all bool) ([]model.Node, []*explorer.Row, error) {
	h, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}
	nodes, err := h.List(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	f := forest.Build(nodes)
	var set expansion.Set
	if all {
		set = allExpanded(f)
	} else {
		set = a.openTracker().Init(f)
	}
	return nodes, explorer.Render(f, set), nil
}

func newTreeCmd(a *app) *cobra.Command {
	var all, ascii, unicode bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the sidebar tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, false); err != nil {
				return err
			}
			defer a.close()

			nodes, rows, err := snapshotRows(cmd, a, all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(nodes) == 0 {
				fmt.Fprintln(out, emptyTreeMessage)
				return nil
			}
			c := explorer.UnicodeConnectors
			if ascii || a.cfg.Explorer.ASCII || (!unicode && !isTerminal(out)) {
				c = explorer.ASCIIConnectors
			}
			fmt.Fprint(out, explorer.Text(rows, c))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Expand every node")
	cmd.Flags().BoolVar(&ascii, "ascii", false, "ASCII tree guides")
	cmd.Flags().BoolVar(&unicode, "unicode", false, "Box-drawing guides even when not writing to a terminal")
	return cmd
}

const emptyTreeMessage = "No nodes yet. Add one with `ft add --value N`."

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newDiagramCmd(a *app) *cobra.Command {
	var direction, out string
	cmd := &cobra.Command{
		Use:   "diagram",
		Short: "Print the mermaid diagram, or render it with mmdc",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, false); err != nil {
				return err
			}
			defer a.close()

			dir := a.cfg.Diagram.Direction
			if direction != "" {
				dir = diagram.Direction(strings.ToUpper(direction))
				if !dir.IsValid() {
					return fmt.Errorf("unknown direction %q", direction)
				}
			}
			h, err := a.openStore()
			if err != nil {
				return err
			}
			nodes, err := h.List(cmd.Context())
			if err != nil {
				return err
			}
			code := diagram.GenerateWith(nodes, diagram.Options{Direction: dir})
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), code)
				return nil
			}

			format := strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
			if format == "mmd" || format == "mermaid" {
				return os.WriteFile(out, []byte(code+"\n"), 0o644)
			}
			m := &diagram.MMDC{Path: a.cfg.Diagram.MMDCPath, Format: format, Theme: a.cfg.Diagram.Theme}
			res := diagram.NewScheduler(m, a.logger).Render(cmd.Context(), code)
			if res.Err != nil {
				return res.Err
			}
			if err := os.WriteFile(out, res.Artifact, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%s)\n", out, res.RenderID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&direction, "direction", "d", "", "Graph direction: TD, LR, BT, RL")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to a file: .mmd keeps the text, .svg/.png render through mmdc")
	return cmd
}

func newDoctorCmd(a *app) *cobra.Command {
	var asJSON, strict bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Report dangling references, conflicts, and cycles",
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
			nodes, err := h.List(cmd.Context())
			if err != nil {
				return err
			}
			r := analysis.Inspect(nodes)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(r); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%d nodes, %d roots, %d slot edges, %d parent edges: %s\n",
					r.Nodes, r.Roots, r.SlotEdges, r.ParentEdges, r.HealthLevel)
				for _, f := range r.Findings {
					fmt.Fprintf(out, "  %-18s %s\n", f.Kind, f.Message)
				}
			}
			if strict && !r.Healthy() {
				return fmt.Errorf("%d findings", len(r.Findings))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when anything is reported")
	return cmd
}

func newSnapshotCmd(a *app) *cobra.Command {
	var all bool
	var title string
	cmd := &cobra.Command{
		Use:   "snapshot FILE",
		Short: "Save the sidebar tree as an SVG or PNG image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, false); err != nil {
				return err
			}
			defer a.close()

			_, rows, err := snapshotRows(cmd, a, all)
			if err != nil {
				return err
			}
			if title == "" {
				title = "Flow Tree · " + a.cfg.Store.Workspace
			}
			if err := export.SaveTreeSnapshot(export.TreeSnapshotOptions{Path: args[0], Rows: rows, Title: title}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Expand every node")
	cmd.Flags().StringVar(&title, "title", "", "Image title")
	return cmd
}
