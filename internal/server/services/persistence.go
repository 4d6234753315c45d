package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/logging"
	"github.com/dmitrijs2005/recordkeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/recordkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/metadata"
	"github.com/dmitrijs2005/recordkeeper/internal/workerpool"
)

// DefaultWriteBatchSize is the metadata put size used when none is configured.
const DefaultWriteBatchSize = 25

// PersistenceService writes record versions to the content store and the
// metadata store, in that order, and undoes its own writes when the metadata
// stage fails.
type PersistenceService struct {
	content    blobstore.Store
	repo       metadata.Repository
	pool       *workerpool.Pool
	writeBatch int
	publisher  *ChangePublisher
	logger     logging.Logger
}

func NewPersistenceService(content blobstore.Store, repo metadata.Repository, pool *workerpool.Pool,
	writeBatch int, publisher *ChangePublisher, logger logging.Logger) *PersistenceService {
	if writeBatch <= 0 {
		writeBatch = DefaultWriteBatchSize
	}
	return &PersistenceService{
		content:    content,
		repo:       repo,
		pool:       pool,
		writeBatch: writeBatch,
		publisher:  publisher,
		logger:     logger.With("module", "persistence"),
	}
}

// PersistRecordBatch commits every item of batch. Content goes first; metadata
// is written only when all content writes succeeded. Notifications are sent
// only after both stages committed.
func (s *PersistenceService) PersistRecordBatch(ctx context.Context, batch *models.TransferBatch, collab *models.CollaborationContext) error {
	if len(batch.Records) == 0 {
		return nil
	}

	if err := s.writeContent(ctx, batch.Records, collab); err != nil {
		return err
	}

	// A caller that went away before the metadata stage gets no compensation.
	if err := ctx.Err(); err != nil {
		return err
	}

	metas := make([]*models.RecordMetadata, len(batch.Records))
	for i, p := range batch.Records {
		metas[i] = p.Metadata
	}

	if err := s.putMetadata(ctx, metas, collab); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return common.WithSecondary(err, s.compensate(ctx, batch.Records, collab))
	}

	changes := make([]models.RecordChanged, len(batch.Records))
	for i, p := range batch.Records {
		changes[i] = changeFor(p, batch.User)
		metrics.RecordsCommitted.WithLabelValues(string(p.Operation)).Inc()
	}
	s.publisher.Publish(ctx, changes, collab)
	return nil
}

func (s *PersistenceService) writeContent(ctx context.Context, items []*models.RecordProcessing, collab *models.CollaborationContext) error {
	errs := workerpool.Each(ctx, s.pool, items, func(ctx context.Context, p *models.RecordProcessing) error {
		body, err := encodeContent(p.Data)
		if err != nil {
			return err
		}
		if err := s.content.Put(ctx, collab.Key(p.Locator()), body); err != nil {
			return fmt.Errorf("%s: %w", p.Locator(), err)
		}
		return nil
	})
	return common.AsStorageFailure("write content", workerpool.Join(errs))
}

// putMetadata writes metas in store-sized batches dispatched concurrently.
// Any item the store hands back unprocessed fails the whole call.
func (s *PersistenceService) putMetadata(ctx context.Context, metas []*models.RecordMetadata, collab *models.CollaborationContext) error {
	errs := workerpool.Each(ctx, s.pool, workerpool.Chunk(metas, s.writeBatch), func(ctx context.Context, chunk []*models.RecordMetadata) error {
		unprocessed, err := s.repo.BatchPut(ctx, collab, chunk)
		if err != nil {
			return err
		}
		if len(unprocessed) > 0 {
			return fmt.Errorf("%w: %d of %d items, first %s", common.ErrPartialBatchFailure, len(unprocessed), len(chunk), unprocessed[0])
		}
		return nil
	})
	return common.AsStorageFailure("write metadata", workerpool.Join(errs))
}

// compensate restores the metadata rows as they were before the batch and
// then deletes the content versions the batch wrote. Content is deleted only
// for records whose metadata was undone; a row that could not be restored
// still references its new version, so that blob stays. It returns what could
// not be undone.
func (s *PersistenceService) compensate(ctx context.Context, items []*models.RecordProcessing, collab *models.CollaborationContext) error {
	ctx = context.WithoutCancel(ctx)
	s.logger.Warn(ctx, "metadata commit failed, compensating", "records", len(items))

	var restore, created []*models.RecordProcessing
	for _, p := range items {
		if p.Previous != nil {
			restore = append(restore, p)
		} else {
			created = append(created, p)
		}
	}

	var result *multierror.Error
	collect := func(err error) {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	var undone, kept []*models.RecordProcessing
	settle := func(chunks [][]*models.RecordProcessing, errs []error) {
		for i, err := range errs {
			if err == nil {
				undone = append(undone, chunks[i]...)
				continue
			}
			collect(err)
			kept = append(kept, chunks[i]...)
		}
	}

	restoreChunks := workerpool.Chunk(restore, s.writeBatch)
	settle(restoreChunks, workerpool.Each(ctx, s.pool, restoreChunks, func(ctx context.Context, chunk []*models.RecordProcessing) error {
		prev := make([]*models.RecordMetadata, len(chunk))
		for i, p := range chunk {
			prev[i] = p.Previous
		}
		return s.restoreChunk(ctx, prev, collab)
	}))

	createdChunks := workerpool.Chunk(created, s.writeBatch)
	settle(createdChunks, workerpool.Each(ctx, s.pool, createdChunks, func(ctx context.Context, chunk []*models.RecordProcessing) error {
		ids := make([]string, len(chunk))
		for i, p := range chunk {
			ids[i] = p.Metadata.ID
		}
		if err := s.repo.BatchDelete(ctx, collab, ids); err != nil {
			return fmt.Errorf("delete metadata: %w", err)
		}
		return nil
	}))

	errs := workerpool.Each(ctx, s.pool, undone, func(ctx context.Context, p *models.RecordProcessing) error {
		return s.content.Delete(ctx, collab.Key(p.Locator()))
	})
	for i, err := range errs {
		if err != nil {
			collect(fmt.Errorf("delete content %s: %w", undone[i].Locator(), err))
		}
	}
	if len(kept) > 0 {
		locators := make([]string, len(kept))
		for i, p := range kept {
			locators[i] = p.Locator()
		}
		collect(fmt.Errorf("content kept for unrestored rows: %s", strings.Join(locators, ", ")))
	}

	if result != nil {
		result.ErrorFormat = workerpool.ListFormat
	}
	if err := result.ErrorOrNil(); err != nil {
		metrics.Compensations.WithLabelValues("ingest", "failed").Inc()
		s.logger.Error(ctx, "compensation incomplete", "error", err)
		return err
	}
	metrics.Compensations.WithLabelValues("ingest", "ok").Inc()
	return nil
}

func (s *PersistenceService) restoreChunk(ctx context.Context, prev []*models.RecordMetadata, collab *models.CollaborationContext) error {
	unprocessed, err := s.repo.BatchPut(ctx, collab, prev)
	if err != nil {
		return fmt.Errorf("restore metadata: %w", err)
	}
	if len(unprocessed) > 0 {
		return fmt.Errorf("restore metadata: %w: %d of %d items, first %s", common.ErrPartialBatchFailure, len(unprocessed), len(prev), unprocessed[0])
	}
	return nil
}

// UpdateMetadata writes metadata-only changes. Every id in expected must still
// be at the given latest version when written, otherwise it is returned as
// locked and left untouched. Ids absent from expected are written
// unconditionally in store-sized batches.
func (s *PersistenceService) UpdateMetadata(ctx context.Context, metas []*models.RecordMetadata, expected map[string]int64,
	collab *models.CollaborationContext) ([]string, error) {
	var conditional, plain []*models.RecordMetadata
	for _, m := range metas {
		if _, ok := expected[m.ID]; ok {
			conditional = append(conditional, m)
		} else {
			plain = append(plain, m)
		}
	}

	var mu sync.Mutex
	var locked []string
	errs := workerpool.Each(ctx, s.pool, conditional, func(ctx context.Context, m *models.RecordMetadata) error {
		err := s.repo.PutIfLatest(ctx, collab, m, expected[m.ID])
		if errors.Is(err, common.ErrVersionConflict) {
			mu.Lock()
			locked = append(locked, m.ID)
			mu.Unlock()
			return nil
		}
		return err
	})

	err := common.AsStorageFailure("update metadata", workerpool.Join(errs))
	if len(plain) > 0 {
		if perr := s.putMetadata(ctx, plain, collab); perr != nil && err == nil {
			err = perr
		}
	}
	return locked, err
}
