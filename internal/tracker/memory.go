package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hone/internal/types"
)

// Memory is the in-process tracker stub used in tests and as a fallback
// when no external tracker is configured.
type Memory struct {
	mu       sync.Mutex
	items    map[string]types.WorkItem
	deps     []types.ItemDep
	comments map[string][]string
	seq      int
}

// NewMemory returns an empty in-memory tracker.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]types.WorkItem)}
}

func (m *Memory) Create(_ context.Context, item types.WorkItem) (types.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.ID == "" {
		m.seq++
		item.ID = fmt.Sprintf("hn-%d", m.seq)
	}
	if _, exists := m.items[item.ID]; exists {
		return types.WorkItem{}, types.Trackerf("item %s already exists", item.ID)
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
	m.items[item.ID] = item
	return item, nil
}

func (m *Memory) List(_ context.Context, status types.ItemStatus) ([]types.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.WorkItem
	for _, item := range m.items {
		if status == "" || item.Status == status {
			out = append(out, item)
		}
	}
	sortItems(out)
	return out, nil
}

func (m *Memory) Show(_ context.Context, id string) (types.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return types.WorkItem{}, types.Missingf("item %s not found", id)
	}
	return item, nil
}

func (m *Memory) Update(_ context.Context, id string, fields UpdateFields) (types.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return types.WorkItem{}, types.Missingf("item %s not found", id)
	}
	if fields.Title != "" {
		item.Title = fields.Title
	}
	if fields.Description != "" {
		item.Description = fields.Description
	}
	if fields.Status != "" {
		item.Status = fields.Status
	}
	if fields.Priority != nil {
		item.Priority = *fields.Priority
	}
	if fields.Labels != nil {
		item.Labels = fields.Labels
	}
	item.UpdatedAt = time.Now().UTC()
	if item.Status == types.ItemClosed && item.ClosedAt == nil {
		t := item.UpdatedAt
		item.ClosedAt = &t
	}
	m.items[id] = item
	return item, nil
}

func (m *Memory) Close(_ context.Context, id string) (types.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return types.WorkItem{}, types.Missingf("item %s not found", id)
	}
	if item.Status != types.ItemClosed {
		now := time.Now().UTC()
		item.Status = types.ItemClosed
		item.UpdatedAt = now
		item.ClosedAt = &now
		m.items[id] = item
	}
	return item, nil
}

func (m *Memory) Ready(_ context.Context) ([]types.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	blocked := make(map[string]bool)
	for _, d := range m.deps {
		if d.Type != types.DepBlocks {
			continue
		}
		if blocker, ok := m.items[d.FromID]; ok && blocker.Status != types.ItemClosed {
			blocked[d.ToID] = true
		}
	}

	var out []types.WorkItem
	for _, item := range m.items {
		if item.Status == types.ItemOpen && !blocked[item.ID] {
			out = append(out, item)
		}
	}
	sortItems(out)
	return out, nil
}

func (m *Memory) AddDep(_ context.Context, dep types.ItemDep) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[dep.FromID]; !ok {
		return types.Missingf("item %s not found", dep.FromID)
	}
	if _, ok := m.items[dep.ToID]; !ok {
		return types.Missingf("item %s not found", dep.ToID)
	}
	for _, d := range m.deps {
		if d == dep {
			return nil
		}
	}
	m.deps = append(m.deps, dep)
	return nil
}

func (m *Memory) DepTree(_ context.Context, id string) ([]types.ItemDep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return nil, types.Missingf("item %s not found", id)
	}

	visited := map[string]bool{id: true}
	taken := make(map[types.ItemDep]bool)
	queue := []string{id}
	var out []types.ItemDep
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range m.deps {
			if d.FromID != cur && d.ToID != cur {
				continue
			}
			if taken[d] {
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

// DiscoveredFrom lists items recorded as discovered while working parentID:
// every item on the from side of a discovered-from edge pointing at the
// parent.
func (m *Memory) DiscoveredFrom(_ context.Context, parentID string) ([]types.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.WorkItem
	for _, d := range m.deps {
		if d.Type != types.DepDiscoveredFrom || d.ToID != parentID {
			continue
		}
		if item, ok := m.items[d.FromID]; ok {
			out = append(out, item)
		}
	}
	sortItems(out)
	return out, nil
}

func (m *Memory) Export(ctx context.Context) ([]types.WorkItem, error) {
	return m.List(ctx, "")
}

// Comment records a comment against an existing item.
func (m *Memory) Comment(_ context.Context, id, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return types.Missingf("item %s not found", id)
	}
	if m.comments == nil {
		m.comments = make(map[string][]string)
	}
	m.comments[id] = append(m.comments[id], body)
	return nil
}

// Comments returns the comments recorded for an item, in order.
func (m *Memory) Comments(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.comments[id]...)
}

func sortItems(items []types.WorkItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func sortDeps(deps []types.ItemDep) {
	sort.SliceStable(deps, func(i, j int) bool {
		a, b := deps[i], deps[j]
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		if a.ToID != b.ToID {
			return a.ToID < b.ToID
		}
		return a.Type < b.Type
	})
}
