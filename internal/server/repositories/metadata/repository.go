// Package metadata holds the mutable metadata store: one row per record id,
// optionally scoped by a collaboration namespace.
package metadata

import (
	"context"

	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

// Repository is the metadata store contract.
type Repository interface {
	// BatchGet returns the rows found among ids, keyed by record id.
	BatchGet(ctx context.Context, collab *models.CollaborationContext, ids []string) (map[string]*models.RecordMetadata, error)
	// BatchPut upserts items. Items the store did not process are returned
	// by id; callers must treat any of them as a failure.
	BatchPut(ctx context.Context, collab *models.CollaborationContext, items []*models.RecordMetadata) (unprocessed []string, err error)
	// PutIfLatest writes item only when the stored latest version equals
	// expected, otherwise it returns common.ErrVersionConflict.
	PutIfLatest(ctx context.Context, collab *models.CollaborationContext, item *models.RecordMetadata, expected int64) error
	BatchDelete(ctx context.Context, collab *models.CollaborationContext, ids []string) error
	// QueryByLegalTag pages through rows carrying tag, ordered by id.
	// An empty next cursor means the last page.
	QueryByLegalTag(ctx context.Context, collab *models.CollaborationContext, tag string, limit int, cursor string) (rows []*models.RecordMetadata, next string, err error)
}
