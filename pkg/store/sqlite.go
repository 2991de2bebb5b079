package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/kraitsura/flowtree/pkg/model"
)

// Driver selects the database/sql driver.
type Driver string

const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO Driver = "sqlite3"
	// DriverPure is modernc.org/sqlite, which needs no C toolchain.
	DriverPure Driver = "sqlite"
)

// IsValid returns true if the driver is registered by this package
func (d Driver) IsValid() bool {
	return d == DriverCGO || d == DriverPure
}

// DefaultWorkspace is used when no workspace is configured.
const DefaultWorkspace = "default"

// Options configures OpenSQLite.
type Options struct {
	Driver    Driver
	Workspace string
	Logger    *slog.Logger
}

// SQLite is a Store backed by a SQLite file. Every query is scoped to one
// workspace; ForWorkspace returns views sharing the same connection.
type SQLite struct {
	db        *sql.DB
	path      string
	workspace string
	logger    *slog.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, opts Options) (*SQLite, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverPure
	}
	if !driver.IsValid() {
		return nil, fmt.Errorf("unknown sqlite driver %q", driver)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workspace := opts.Workspace
	if workspace == "" {
		workspace = DefaultWorkspace
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(string(driver), path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps transactions serialized and :memory: shared.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, path: path, workspace: workspace, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	logger.Debug("opened node store", "path", path, "driver", driver, "workspace", workspace)
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS number_nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workspace_id TEXT NOT NULL,
		value INTEGER NOT NULL,
		name TEXT,
		type TEXT,
		parent_id INTEGER,
		left_child_id INTEGER,
		right_child_id INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_number_nodes_workspace ON number_nodes(workspace_id);
	`
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil && s.path != ":memory:" {
		s.logger.Debug("WAL mode unavailable", "error", err)
	}
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database. Views from ForWorkspace share it.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// Workspace returns the workspace this view is scoped to.
func (s *SQLite) Workspace() string { return s.workspace }

// ForWorkspace returns a view of the same database scoped to workspace.
func (s *SQLite) ForWorkspace(workspace string) *SQLite {
	if workspace == "" {
		workspace = DefaultWorkspace
	}
	view := *s
	view.workspace = workspace
	return &view
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const nodeColumns = `id, value, name, type, parent_id, left_child_id, right_child_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(r rowScanner) (model.Node, error) {
	var (
		n                   model.Node
		name, typ           sql.NullString
		parent, left, right sql.NullInt64
		created             string
	)
	if err := r.Scan(&n.ID, &n.Value, &name, &typ, &parent, &left, &right, &created); err != nil {
		return model.Node{}, err
	}
	n.Name = name.String
	n.Type = model.NodeType(typ.String)
	n.ParentID = nullRef(parent)
	n.LeftChildID = nullRef(left)
	n.RightChildID = nullRef(right)
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		n.CreatedAt = t
	}
	return n, nil
}

func nullRef(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return model.Ref(v.Int64)
}

func refArg(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringArg(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns the workspace's nodes ordered by id.
func (s *SQLite) List(ctx context.Context) ([]model.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM number_nodes WHERE workspace_id = ? ORDER BY id`, s.workspace)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []model.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// Get returns one node.
func (s *SQLite) Get(ctx context.Context, id int64) (model.Node, error) {
	return s.get(ctx, s.db, id)
}

func (s *SQLite) get(ctx context.Context, q querier, id int64) (model.Node, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM number_nodes WHERE id = ? AND workspace_id = ?`, id, s.workspace)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Node{}, ErrNotFound
	}
	if err != nil {
		return model.Node{}, fmt.Errorf("get node %d: %w", id, err)
	}
	return n, nil
}

// Create validates and inserts a node.
func (s *SQLite) Create(ctx context.Context, fields model.NodeFields) (model.Node, error) {
	if err := fields.Validate(); err != nil {
		return model.Node{}, err
	}
	if err := sameSlots(fields.LeftChildID.ID, fields.RightChildID.ID); err != nil {
		return model.Node{}, err
	}

	var created model.Node
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.validateParent(ctx, tx, fields.ParentID.ID, nil); err != nil {
			return err
		}
		if err := s.validateChildRef(ctx, tx, fields.LeftChildID.ID, nil, "left_child_id"); err != nil {
			return err
		}
		if err := s.validateChildRef(ctx, tx, fields.RightChildID.ID, nil, "right_child_id"); err != nil {
			return err
		}

		var name string
		var typ model.NodeType
		if fields.Name != nil {
			name = *fields.Name
		}
		if fields.Type != nil {
			typ = *fields.Type
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO number_nodes
				(workspace_id, value, name, type, parent_id, left_child_id, right_child_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.workspace, *fields.Value, stringArg(name), stringArg(string(typ)),
			refArg(fields.ParentID.ID), refArg(fields.LeftChildID.ID), refArg(fields.RightChildID.ID),
			time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert node: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert node: %w", err)
		}
		created, err = s.get(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.Node{}, err
	}
	s.logger.Debug("created node", "id", created.ID, "workspace", s.workspace)
	return created, nil
}

// Update applies the set fields of a patch. Relationship fields that are set
// with a nil id are cleared. A set empty name or type clears it.
func (s *SQLite) Update(ctx context.Context, id int64, fields model.NodeFields) (model.Node, error) {
	if err := fields.ValidatePatch(); err != nil {
		return model.Node{}, err
	}

	var updated model.Node
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		node, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}

		finalLeft, finalRight := node.LeftChildID, node.RightChildID
		if fields.LeftChildID.Set {
			finalLeft = fields.LeftChildID.ID
		}
		if fields.RightChildID.Set {
			finalRight = fields.RightChildID.ID
		}
		if err := sameSlots(finalLeft, finalRight); err != nil {
			return err
		}

		if fields.Value != nil {
			node.Value = *fields.Value
		}
		if fields.Name != nil {
			node.Name = *fields.Name
		}
		if fields.Type != nil {
			node.Type = *fields.Type
		}
		if fields.ParentID.Set {
			if err := s.validateParent(ctx, tx, fields.ParentID.ID, &id); err != nil {
				return err
			}
			node.ParentID = fields.ParentID.ID
		}
		if fields.LeftChildID.Set {
			if err := s.validateChildRef(ctx, tx, fields.LeftChildID.ID, &id, "left_child_id"); err != nil {
				return err
			}
			node.LeftChildID = fields.LeftChildID.ID
		}
		if fields.RightChildID.Set {
			if err := s.validateChildRef(ctx, tx, fields.RightChildID.ID, &id, "right_child_id"); err != nil {
				return err
			}
			node.RightChildID = fields.RightChildID.ID
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE number_nodes
			SET value = ?, name = ?, type = ?, parent_id = ?, left_child_id = ?, right_child_id = ?
			WHERE id = ? AND workspace_id = ?`,
			node.Value, stringArg(node.Name), stringArg(string(node.Type)),
			refArg(node.ParentID), refArg(node.LeftChildID), refArg(node.RightChildID),
			id, s.workspace,
		)
		if err != nil {
			return fmt.Errorf("update node %d: %w", id, err)
		}
		updated = node
		return nil
	})
	if err != nil {
		return model.Node{}, err
	}
	s.logger.Debug("updated node", "id", id, "workspace", s.workspace)
	return updated, nil
}

// Delete removes a node. References to it from any node are set to NULL.
func (s *SQLite) Delete(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.get(ctx, tx, id); err != nil {
			return err
		}
		for _, col := range []string{"parent_id", "left_child_id", "right_child_id"} {
			if _, err := tx.ExecContext(ctx,
				`UPDATE number_nodes SET `+col+` = NULL WHERE `+col+` = ?`, id); err != nil {
				return fmt.Errorf("clear %s references: %w", col, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM number_nodes WHERE id = ? AND workspace_id = ?`, id, s.workspace); err != nil {
			return fmt.Errorf("delete node %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("deleted node", "id", id, "workspace", s.workspace)
	return nil
}

// Count returns the number of nodes in the workspace.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM number_nodes WHERE workspace_id = ?`, s.workspace).Scan(&n)
	return n, err
}

// Workspaces lists every workspace id with at least one node.
func (s *SQLite) Workspaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT workspace_id FROM number_nodes ORDER BY workspace_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var ws string
		if err := rows.Scan(&ws); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (s *SQLite) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) exists(ctx context.Context, q querier, id int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM number_nodes WHERE id = ? AND workspace_id = ?`, id, s.workspace).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// validateParent checks that parent is not the node itself and exists in the
// workspace.
func (s *SQLite) validateParent(ctx context.Context, q querier, parent, nodeID *int64) error {
	if parent == nil {
		return nil
	}
	if nodeID != nil && *parent == *nodeID {
		return model.Invalid("parent_id", "Node cannot be its own parent")
	}
	ok, err := s.exists(ctx, q, *parent)
	if err != nil {
		return err
	}
	if !ok {
		return model.Invalid("parent_id", "Parent node %d not found in this workspace", *parent)
	}
	return nil
}

// validateChildRef checks a left or right slot assignment: not self, exists
// in the workspace, does not close a cycle through the slots, and is not
// already a slot child of another node.
func (s *SQLite) validateChildRef(ctx context.Context, q querier, child, nodeID *int64, field string) error {
	if child == nil {
		return nil
	}
	if nodeID != nil && *child == *nodeID {
		return model.Invalid(field, "node cannot reference itself")
	}
	ok, err := s.exists(ctx, q, *child)
	if err != nil {
		return err
	}
	if !ok {
		return model.Invalid(field, "node %d not found in this workspace", *child)
	}

	if nodeID != nil {
		cyclic, err := s.reachesViaSlots(ctx, q, *child, *nodeID)
		if err != nil {
			return err
		}
		if cyclic {
			return model.Invalid(field, "circular reference detected")
		}
	}

	query := `SELECT id FROM number_nodes
		WHERE workspace_id = ? AND (left_child_id = ? OR right_child_id = ?)`
	args := []any{s.workspace, *child, *child}
	if nodeID != nil {
		query += ` AND id != ?`
		args = append(args, *nodeID)
	}
	var owner int64
	err = q.QueryRowContext(ctx, query+` ORDER BY id LIMIT 1`, args...).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return err
	}
	return model.Invalid(field, "node %d is already a child of node %d", *child, owner)
}

// reachesViaSlots walks down left/right slots from start and reports whether
// target is reachable.
func (s *SQLite) reachesViaSlots(ctx context.Context, q querier, start, target int64) (bool, error) {
	visited := make(map[int64]bool)
	stack := []int64{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true, nil
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true

		var left, right sql.NullInt64
		err := q.QueryRowContext(ctx,
			`SELECT left_child_id, right_child_id FROM number_nodes WHERE id = ? AND workspace_id = ?`,
			cur, s.workspace).Scan(&left, &right)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return false, err
		}
		if left.Valid {
			stack = append(stack, left.Int64)
		}
		if right.Valid {
			stack = append(stack, right.Int64)
		}
	}
	return false, nil
}
