// Package store persists node records and exposes them through the Store
// interface, backed by SQLite locally or by the HTTP API remotely.
package store

import (
	"context"
	"errors"

	"github.com/kraitsura/flowtree/pkg/model"
)

var (
	// ErrNotFound is returned when a node id does not exist in the workspace.
	ErrNotFound = errors.New("node not found")
	// ErrValidation is wrapped by every rejected write.
	ErrValidation = model.ErrInvalid
)

// Store is the node collection the explorer reads snapshots from.
type Store interface {
	// List returns every node in the workspace ordered by id.
	List(ctx context.Context) ([]model.Node, error)
	// Create inserts a node. fields.Value is required.
	Create(ctx context.Context, fields model.NodeFields) (model.Node, error)
	// Update applies only the fields that are set.
	Update(ctx context.Context, id int64, fields model.NodeFields) (model.Node, error)
	// Delete removes a node and clears references to it.
	Delete(ctx context.Context, id int64) error
}

// sameSlots rejects a write whose final left and right children match.
func sameSlots(left, right *int64) error {
	if left != nil && right != nil && *left == *right {
		return model.Invalid("", "left_child_id and right_child_id cannot be the same node")
	}
	return nil
}
