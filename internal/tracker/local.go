package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"hone/internal/logging"
	"hone/internal/types"
)

const localSchema = `
CREATE TABLE IF NOT EXISTS items (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'open',
	priority    INTEGER NOT NULL DEFAULT 0,
	labels      TEXT NOT NULL DEFAULT '[]',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	closed_at   TEXT
);
CREATE TABLE IF NOT EXISTS deps (
	from_id TEXT NOT NULL,
	to_id   TEXT NOT NULL,
	type    TEXT NOT NULL,
	PRIMARY KEY (from_id, to_id, type)
);
CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
CREATE INDEX IF NOT EXISTS idx_deps_to ON deps(to_id, type);
`

// Local is the embedded SQLite-backed tracker for projects without an
// external one.
type Local struct {
	db *sql.DB
}

// NewLocal opens (creating if needed) the tracker database at path.
func NewLocal(path string) (*Local, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tracker db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracker db: %w", err)
	}
	if _, err := db.Exec(localSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init tracker schema: %w", err)
	}
	logging.Tracker("local tracker db open at %s", path)
	return &Local{db: db}, nil
}

// Shutdown closes the database.
func (l *Local) Shutdown() error {
	return l.db.Close()
}

const itemCols = "id, title, description, status, priority, labels, created_at, updated_at, closed_at"

func scanItem(row interface{ Scan(...any) error }) (types.WorkItem, error) {
	var item types.WorkItem
	var labels, createdAt, updatedAt string
	var closedAt sql.NullString
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Status,
		&item.Priority, &labels, &createdAt, &updatedAt, &closedAt)
	if err != nil {
		return types.WorkItem{}, err
	}
	if err := json.Unmarshal([]byte(labels), &item.Labels); err != nil {
		item.Labels = nil
	}
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	item.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if closedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, closedAt.String); err == nil {
			item.ClosedAt = &t
		}
	}
	return item, nil
}

func (l *Local) Create(ctx context.Context, item types.WorkItem) (types.WorkItem, error) {
	if item.ID == "" {
		item.ID = "hn-" + uuid.NewString()[:8]
	}
	if item.Status == "" {
		item.Status = types.ItemOpen
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	labels, err := json.Marshal(item.Labels)
	if err != nil {
		return types.WorkItem{}, fmt.Errorf("failed to encode labels: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		"INSERT INTO items (id, title, description, status, priority, labels, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		item.ID, item.Title, item.Description, string(item.Status), item.Priority,
		string(labels), item.CreatedAt.Format(time.RFC3339Nano), item.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return types.WorkItem{}, types.Trackerf("create %s: %v", item.ID, err)
	}
	return item, nil
}

func (l *Local) List(ctx context.Context, status types.ItemStatus) ([]types.WorkItem, error) {
	query := "SELECT " + itemCols + " FROM items ORDER BY created_at, id"
	args := []any{}
	if status != "" {
		query = "SELECT " + itemCols + " FROM items WHERE status = ? ORDER BY created_at, id"
		args = append(args, string(status))
	}
	return l.queryItems(ctx, query, args...)
}

func (l *Local) queryItems(ctx context.Context, query string, args ...any) ([]types.WorkItem, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.Trackerf("query items: %v", err)
	}
	defer rows.Close()

	var items []types.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, types.Trackerf("scan item: %v", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (l *Local) Show(ctx context.Context, id string) (types.WorkItem, error) {
	row := l.db.QueryRowContext(ctx, "SELECT "+itemCols+" FROM items WHERE id = ?", id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return types.WorkItem{}, types.Missingf("item %s not found", id)
	}
	if err != nil {
		return types.WorkItem{}, types.Trackerf("show %s: %v", id, err)
	}
	return item, nil
}

func (l *Local) Update(ctx context.Context, id string, fields UpdateFields) (types.WorkItem, error) {
	var sets []string
	var args []any
	if fields.Title != "" {
		sets = append(sets, "title = ?")
		args = append(args, fields.Title)
	}
	if fields.Description != "" {
		sets = append(sets, "description = ?")
		args = append(args, fields.Description)
	}
	if fields.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, string(fields.Status))
		if fields.Status == types.ItemClosed {
			sets = append(sets, "closed_at = COALESCE(closed_at, ?)")
			args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
		}
	}
	if fields.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *fields.Priority)
	}
	if fields.Labels != nil {
		labels, err := json.Marshal(fields.Labels)
		if err != nil {
			return types.WorkItem{}, fmt.Errorf("failed to encode labels: %w", err)
		}
		sets = append(sets, "labels = ?")
		args = append(args, string(labels))
	}
	if len(sets) == 0 {
		return l.Show(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano), id)

	res, err := l.db.ExecContext(ctx, "UPDATE items SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return types.WorkItem{}, types.Trackerf("update %s: %v", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.WorkItem{}, types.Missingf("item %s not found", id)
	}
	return l.Show(ctx, id)
}

func (l *Local) Close(ctx context.Context, id string) (types.WorkItem, error) {
	return l.Update(ctx, id, UpdateFields{Status: types.ItemClosed})
}

func (l *Local) Ready(ctx context.Context) ([]types.WorkItem, error) {
	query := "SELECT " + itemCols + ` FROM items i
		WHERE i.status = 'open' AND NOT EXISTS (
			SELECT 1 FROM deps d JOIN items b ON b.id = d.from_id
			WHERE d.to_id = i.id AND d.type = 'blocks' AND b.status != 'closed'
		) ORDER BY created_at, id`
	return l.queryItems(ctx, query)
}

func (l *Local) AddDep(ctx context.Context, dep types.ItemDep) error {
	for _, id := range []string{dep.FromID, dep.ToID} {
		if _, err := l.Show(ctx, id); err != nil {
			return err
		}
	}
	_, err := l.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO deps (from_id, to_id, type) VALUES (?, ?, ?)",
		dep.FromID, dep.ToID, string(dep.Type))
	if err != nil {
		return types.Trackerf("dep add %s -> %s: %v", dep.FromID, dep.ToID, err)
	}
	return nil
}

func (l *Local) DepTree(ctx context.Context, id string) ([]types.ItemDep, error) {
	if _, err := l.Show(ctx, id); err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, "SELECT from_id, to_id, type FROM deps")
	if err != nil {
		return nil, types.Trackerf("dep tree %s: %v", id, err)
	}
	defer rows.Close()

	var all []types.ItemDep
	for rows.Next() {
		var d types.ItemDep
		if err := rows.Scan(&d.FromID, &d.ToID, &d.Type); err != nil {
			return nil, types.Trackerf("scan dep: %v", err)
		}
		all = append(all, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Walk the edge set reachable from id, either direction.
	visited := map[string]bool{id: true}
	taken := make(map[types.ItemDep]bool)
	queue := []string{id}
	var out []types.ItemDep
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range all {
			if (d.FromID != cur && d.ToID != cur) || taken[d] {
				continue
			}
			taken[d] = true
			out = append(out, d)
			for _, next := range []string{d.FromID, d.ToID} {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
	}
	sortDeps(out)
	return out, nil
}

func (l *Local) DiscoveredFrom(ctx context.Context, parentID string) ([]types.WorkItem, error) {
	query := "SELECT " + itemCols + ` FROM items i
		JOIN deps d ON d.from_id = i.id
		WHERE d.to_id = ? AND d.type = 'discovered-from'
		ORDER BY i.created_at, i.id`
	return l.queryItems(ctx, query, parentID)
}

func (l *Local) Export(ctx context.Context) ([]types.WorkItem, error) {
	return l.List(ctx, "")
}
