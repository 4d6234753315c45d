// Package messagebus delivers record change notifications.
package messagebus

import (
	"context"

	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

// Bus publishes one batch of notifications per call, at least once.
type Bus interface {
	Publish(ctx context.Context, collab *models.CollaborationContext, batch []models.RecordChanged) error
	Close() error
}
