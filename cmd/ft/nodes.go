package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kraitsura/flowtree/pkg/loader"
	"github.com/kraitsura/flowtree/pkg/model"
)

// nodeFlags are the write flags shared by add and set.
type nodeFlags struct {
	value, name, typ    string
	parent, left, right string
}

func (nf *nodeFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&nf.value, "value", "", "Integer value")
	f.StringVar(&nf.name, "name", "", "Name (empty clears it on set)")
	f.StringVar(&nf.typ, "type", "", "input, process, or output (empty clears it on set)")
	f.StringVar(&nf.parent, "parent", "", "Parent node id, or none")
	f.StringVar(&nf.left, "left", "", "Left child id, or none")
	f.StringVar(&nf.right, "right", "", "Right child id, or none")
}

// fields builds a write request from the flags the user actually passed.
func (nf *nodeFlags) fields(cmd *cobra.Command) (model.NodeFields, error) {
	var out model.NodeFields
	changed := cmd.Flags().Changed
	if changed("value") {
		v, err := model.ParseValue(nf.value)
		if err != nil {
			return out, err
		}
		out.Value = &v
	}
	if changed("name") {
		name := nf.name
		out.Name = &name
	}
	if changed("type") {
		typ := model.NodeType(strings.ToLower(nf.typ))
		out.Type = &typ
	}
	for _, ref := range []struct {
		flag string
		raw  string
		dst  *model.OptionalRef
	}{
		{"parent", nf.parent, &out.ParentID},
		{"left", nf.left, &out.LeftChildID},
		{"right", nf.right, &out.RightChildID},
	} {
		if !changed(ref.flag) {
			continue
		}
		r, err := parseRef(ref.raw)
		if err != nil {
			return out, fmt.Errorf("--%s: %w", ref.flag, err)
		}
		*ref.dst = r
	}
	return out, nil
}

func parseRef(s string) (model.OptionalRef, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "null":
		return model.ClearRef(), nil
	}
	id, err := parseID(s)
	if err != nil {
		return model.OptionalRef{}, err
	}
	return model.SetRef(id), nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q", s)
	}
	return id, nil
}

func printNode(cmd *cobra.Command, n model.Node, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(n)
	}
	fmt.Fprintln(cmd.OutOrStdout(), n.Label())
	return nil
}

func newAddCmd(a *app) *cobra.Command {
	var nf nodeFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, false); err != nil {
				return err
			}
			defer a.close()

			fields, err := nf.fields(cmd)
			if err != nil {
				return err
			}
			h, err := a.openStore()
			if err != nil {
				return err
			}
			n, err := h.Create(cmd.Context(), fields)
			if err != nil {
				return err
			}
			return printNode(cmd, n, asJSON)
		},
	}
	nf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the created node as JSON")
	return cmd
}

func newSetCmd(a *app) *cobra.Command {
	var nf nodeFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "set ID",
		Short: "Update fields of a node; only the flags given are changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, false); err != nil {
				return err
			}
			defer a.close()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			fields, err := nf.fields(cmd)
			if err != nil {
				return err
			}
			h, err := a.openStore()
			if err != nil {
				return err
			}
			n, err := h.Update(cmd.Context(), id, fields)
			if err != nil {
				return err
			}
			return printNode(cmd, n, asJSON)
		},
	}
	nf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the updated node as JSON")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID...",
		Short: "Delete nodes; references to them are cleared",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, false); err != nil {
				return err
			}
			defer a.close()

			h, err := a.openStore()
			if err != nil {
				return err
			}
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				if err := h.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete #%d: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted #%d\n", id)
			}
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Recreate nodes from a JSONL export; ids are reassigned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, false); err != nil {
				return err
			}
			defer a.close()

			nodes, err := loader.LoadNodesFromFile(args[0])
			if err != nil {
				return err
			}
			h, err := a.openStore()
			if err != nil {
				return err
			}
			res, err := loader.ImportNodes(cmd.Context(), h, nodes)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d of %d nodes, linked %d, dropped %d references\n",
				len(res.IDs), len(nodes), res.Linked, res.Dropped)
			for _, e := range res.Errors {
				fmt.Fprintf(out, "  %v\n", e)
			}
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write nodes as JSON Lines (stdout when FILE is omitted or -)",
		Args:  cobra.MaximumNArgs(1),
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
			if root != "" {
				id, err := parseID(root)
				if err != nil {
					return err
				}
				tree, err := loader.LoadSubtree(id, nodes)
				if err != nil {
					return err
				}
				nodes = tree.Nodes()
			}
			if len(args) == 0 || args[0] == "-" {
				return loader.WriteNodes(cmd.OutOrStdout(), nodes)
			}
			if err := loader.SaveNodesToFile(args[0], nodes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d nodes to %s\n", len(nodes), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Only export the subtree under this node")
	return cmd
}
