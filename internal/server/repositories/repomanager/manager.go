package repomanager

import (
	"context"

	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/metadata"
)

// RepositoryManager owns the metadata store connection and its schema.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Metadata() metadata.Repository
	PingContext(ctx context.Context) error
	Close() error
}
