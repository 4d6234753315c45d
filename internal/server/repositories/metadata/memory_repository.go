package metadata

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

// MemoryRepository is an in-process Repository.
//
// Capacity mimics stores that accept at most that many items per put and
// silently hand back the rest; zero means unlimited. PutHook, when set, runs
// before every write and aborts it with its error.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]*models.RecordMetadata

	Capacity int
	PutHook  func(items []*models.RecordMetadata) error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]*models.RecordMetadata)}
}

func (r *MemoryRepository) BatchGet(ctx context.Context, collab *models.CollaborationContext, ids []string) (map[string]*models.RecordMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*models.RecordMetadata, len(ids))
	for _, id := range ids {
		if m, ok := r.rows[collab.Key(id)]; ok {
			out[id] = m.Clone()
		}
	}
	return out, nil
}

func (r *MemoryRepository) BatchPut(ctx context.Context, collab *models.CollaborationContext, items []*models.RecordMetadata) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.PutHook != nil {
		if err := r.PutHook(items); err != nil {
			return nil, err
		}
	}

	var unprocessed []string
	if r.Capacity > 0 && len(items) > r.Capacity {
		for _, m := range items[r.Capacity:] {
			unprocessed = append(unprocessed, m.ID)
		}
		items = items[:r.Capacity]
	}

	r.mu.Lock()
	for _, m := range items {
		r.rows[collab.Key(m.ID)] = m.Clone()
	}
	r.mu.Unlock()

	return unprocessed, nil
}

func (r *MemoryRepository) PutIfLatest(ctx context.Context, collab *models.CollaborationContext, item *models.RecordMetadata, expected int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.PutHook != nil {
		if err := r.PutHook([]*models.RecordMetadata{item}); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := collab.Key(item.ID)
	cur, ok := r.rows[key]
	if !ok || cur.LatestVersion() != expected {
		return common.ErrVersionConflict
	}
	r.rows[key] = item.Clone()
	return nil
}

func (r *MemoryRepository) BatchDelete(ctx context.Context, collab *models.CollaborationContext, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	for _, id := range ids {
		delete(r.rows, collab.Key(id))
	}
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) QueryByLegalTag(ctx context.Context, collab *models.CollaborationContext, tag string, limit int, cursor string) ([]*models.RecordMetadata, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []string
	for key, m := range r.rows {
		if key <= cursor || collab.Key(m.ID) != key {
			continue
		}
		for _, t := range m.Legal.LegalTags {
			if t == tag {
				keys = append(keys, key)
				break
			}
		}
	}
	sort.Strings(keys)

	next := ""
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
		next = keys[limit-1]
	}
	out := make([]*models.RecordMetadata, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.rows[k].Clone())
	}
	return out, next, nil
}

// Put stores m directly, bypassing capacity and hooks.
func (r *MemoryRepository) Put(collab *models.CollaborationContext, m *models.RecordMetadata) {
	r.mu.Lock()
	r.rows[collab.Key(m.ID)] = m.Clone()
	r.mu.Unlock()
}

// Row returns a copy of the stored row for id, or nil.
func (r *MemoryRepository) Row(collab *models.CollaborationContext, id string) *models.RecordMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rows[collab.Key(id)].Clone()
}
