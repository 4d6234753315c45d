package repomanager

import (
	"context"

	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/metadata"
)

// MemoryRepositoryManager serves an in-process metadata store.
type MemoryRepositoryManager struct {
	metadata *metadata.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{metadata: metadata.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Metadata() metadata.Repository { return m.metadata }

func (m *MemoryRepositoryManager) PingContext(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Close() error { return nil }
