package services

import (
	"context"

	"github.com/dmitrijs2005/recordkeeper/internal/logging"
	"github.com/dmitrijs2005/recordkeeper/internal/server/messagebus"
	"github.com/dmitrijs2005/recordkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
	"github.com/dmitrijs2005/recordkeeper/internal/workerpool"
)

// DefaultPublishBatchSize is used when a non-positive size is configured.
const DefaultPublishBatchSize = 50

// ChangePublisher emits change notifications after a commit. Delivery
// failures are logged only: the stores are already durable at this point.
type ChangePublisher struct {
	bus       messagebus.Bus
	batchSize int
	logger    logging.Logger
}

func NewChangePublisher(bus messagebus.Bus, batchSize int, logger logging.Logger) *ChangePublisher {
	if batchSize <= 0 {
		batchSize = DefaultPublishBatchSize
	}
	return &ChangePublisher{
		bus:       bus,
		batchSize: batchSize,
		logger:    logger.With("module", "change_publisher"),
	}
}

// Publish sends changes in batches of at most the configured size. Each
// change is stamped with the namespace of collab.
func (p *ChangePublisher) Publish(ctx context.Context, changes []models.RecordChanged, collab *models.CollaborationContext) {
	if ns := collab.Namespace(); ns != "" {
		for i := range changes {
			changes[i].Namespace = ns
		}
	}
	for _, batch := range workerpool.Chunk(changes, p.batchSize) {
		if err := p.bus.Publish(ctx, collab, batch); err != nil {
			metrics.PublishFailures.Inc()
			p.logger.Error(ctx, "publish notifications failed",
				"count", len(batch), "first_id", batch[0].ID, "namespace", collab.Namespace(), "error", err)
		}
	}
}

func changeFor(p *models.RecordProcessing, user string) models.RecordChanged {
	c := models.RecordChanged{
		ID:         p.Metadata.ID,
		Kind:       p.Metadata.Kind,
		Op:         p.Operation,
		Version:    p.Metadata.LatestVersion(),
		ModifiedBy: user,
	}
	if p.Operation == models.OpUpdate {
		c.RecordBlocks = p.RecordBlocks
		c.PreviousVersionKind = p.Metadata.PreviousVersionKind
	}
	return c
}
