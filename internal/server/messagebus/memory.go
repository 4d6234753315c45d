package messagebus

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

// MemoryBus keeps published batches in memory. PublishHook, when set, runs
// first and fails the call with its error.
type MemoryBus struct {
	mu      sync.Mutex
	batches [][]models.RecordChanged

	PublishHook func(batch []models.RecordChanged) error
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, _ *models.CollaborationContext, batch []models.RecordChanged) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.PublishHook != nil {
		if err := b.PublishHook(batch); err != nil {
			return err
		}
	}
	cp := make([]models.RecordChanged, len(batch))
	copy(cp, batch)

	b.mu.Lock()
	b.batches = append(b.batches, cp)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) Close() error { return nil }

// Batches returns the published batches in order.
func (b *MemoryBus) Batches() [][]models.RecordChanged {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]models.RecordChanged, len(b.batches))
	copy(out, b.batches)
	return out
}

// Messages returns every published notification in order.
func (b *MemoryBus) Messages() []models.RecordChanged {
	var out []models.RecordChanged
	for _, batch := range b.Batches() {
		out = append(out, batch...)
	}
	return out
}
