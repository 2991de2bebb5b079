package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/kraitsura/flowtree/pkg/model"
	"github.com/kraitsura/flowtree/pkg/store"
)

// ImportError records a node that could not be fully imported.
type ImportError struct {
	SourceID int64 // id in the imported file
	Stage    string
	Err      error
}

func (e ImportError) Error() string {
	return fmt.Sprintf("node %d (%s): %v", e.SourceID, e.Stage, e.Err)
}

func (e ImportError) Unwrap() error { return e.Err }

// ImportResult summarizes an import.
type ImportResult struct {
	IDs     map[int64]int64 // source id -> created id
	Linked  int             // nodes whose relationships were applied
	Dropped int             // references to ids outside the import
	Errors  []ImportError
}

// ImportNodes recreates nodes in dst. Records are created first without
// relationships, then patched with references remapped to the new ids, so
// the source ids never need to be free in dst. Failures are collected per
// node and the import continues; only context cancellation aborts it.
func ImportNodes(ctx context.Context, dst store.Store, nodes []model.Node) (ImportResult, error) {
	res := ImportResult{IDs: make(map[int64]int64, len(nodes))}

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, dup := res.IDs[n.ID]; dup {
			res.Errors = append(res.Errors, ImportError{SourceID: n.ID, Stage: "create", Err: errors.New("duplicate id in input")})
			continue
		}
		value, name, typ := n.Value, n.Name, n.Type
		fields := model.NodeFields{Value: &value}
		if name != "" {
			fields.Name = &name
		}
		if typ != "" {
			fields.Type = &typ
		}
		created, err := dst.Create(ctx, fields)
		if err != nil {
			res.Errors = append(res.Errors, ImportError{SourceID: n.ID, Stage: "create", Err: err})
			continue
		}
		res.IDs[n.ID] = created.ID
	}

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		newID, ok := res.IDs[n.ID]
		if !ok || (n.ParentID == nil && n.LeftChildID == nil && n.RightChildID == nil) {
			continue
		}
		var fields model.NodeFields
		fields.ParentID = res.remap(n.ParentID)
		fields.LeftChildID = res.remap(n.LeftChildID)
		fields.RightChildID = res.remap(n.RightChildID)
		if fields.ParentID.IsZero() && fields.LeftChildID.IsZero() && fields.RightChildID.IsZero() {
			continue
		}
		if _, err := dst.Update(ctx, newID, fields); err != nil {
			res.Errors = append(res.Errors, ImportError{SourceID: n.ID, Stage: "link", Err: err})
			continue
		}
		res.Linked++
	}

	return res, nil
}

// remap translates a source reference. Unknown targets are dropped.
func (r *ImportResult) remap(ref *int64) model.OptionalRef {
	if ref == nil {
		return model.OptionalRef{}
	}
	id, ok := r.IDs[*ref]
	if !ok {
		r.Dropped++
		return model.OptionalRef{}
	}
	return model.SetRef(id)
}
