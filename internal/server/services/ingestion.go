package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/logging"
	"github.com/dmitrijs2005/recordkeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/recordkeeper/internal/server/entitlements"
	"github.com/dmitrijs2005/recordkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
	"github.com/dmitrijs2005/recordkeeper/internal/server/records"
	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/metadata"
	"github.com/dmitrijs2005/recordkeeper/internal/server/validation"
	"github.com/dmitrijs2005/recordkeeper/internal/workerpool"
)

// DefaultReadBatchSize is the metadata get size used when none is configured.
const DefaultReadBatchSize = 100

var timeNow = time.Now

// IngestionService turns client records into committed versions.
type IngestionService struct {
	validator *validation.Validator
	auth      entitlements.Authorizer
	repo      metadata.Repository
	content   blobstore.Store
	writer    *PersistenceService
	pool      *workerpool.Pool
	readBatch int
	logger    logging.Logger
}

func NewIngestionService(validator *validation.Validator, auth entitlements.Authorizer, repo metadata.Repository,
	content blobstore.Store, writer *PersistenceService, pool *workerpool.Pool, readBatch int, logger logging.Logger) *IngestionService {
	if readBatch <= 0 {
		readBatch = DefaultReadBatchSize
	}
	return &IngestionService{
		validator: validator,
		auth:      auth,
		repo:      repo,
		content:   content,
		writer:    writer,
		pool:      pool,
		readBatch: readBatch,
		logger:    logger.With("module", "ingestion"),
	}
}

// CreateOrUpdateRecords validates records, assigns each a new version and
// commits them. Records failing a business check are reported in
// TransferInfo.Rejected and the rest are still written. With skipDupes set,
// records identical to their stored latest version are reported as skipped
// and not written.
func (s *IngestionService) CreateOrUpdateRecords(ctx context.Context, skipDupes bool, recs []*models.Record,
	user string, collab *models.CollaborationContext) (*models.TransferInfo, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: no records", common.ErrInvalidInput)
	}
	if err := s.validator.ValidateRequest(recs); err != nil {
		return nil, err
	}

	accepted, rejected, err := s.validator.ValidateRecords(ctx, collab, recs)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(accepted))
	for i, r := range accepted {
		ids[i] = r.ID
	}
	existing, err := s.readMetadata(ctx, collab, ids)
	if err != nil {
		return nil, err
	}

	stamp := newVersionStamp(timeNow(), user)
	batch := &models.TransferBatch{User: user, Version: stamp.version}

	var updates []pendingUpdate
	for _, r := range accepted {
		r.Data = nonNilData(r.Data)
		hash, err := records.Hash(r.Data, r.Meta)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrInvalidInput, r.ID, err)
		}

		prev, ok := existing[r.ID]
		if !ok {
			batch.Records = append(batch.Records, stamp.create(r, hash))
			continue
		}

		if !s.auth.HasAccess(ctx, prev) || !s.auth.HasOwnerAccess(ctx, prev.Acl) {
			s.logger.Warn(ctx, "record rejected", "id", r.ID, "error", common.ErrAuthorizationDenied)
			rejected = append(rejected, common.NewRecordError(r.ID, common.ErrAuthorizationDenied))
			continue
		}

		unchangedContent := prev.HasVersions() && prev.ContentHash == hash
		if unchangedContent && skipDupes && sameEnvelope(prev, r) {
			batch.SkippedRecords = append(batch.SkippedRecords, r.ID)
			continue
		}
		updates = append(updates, pendingUpdate{record: r, prev: prev, hash: hash, unchanged: unchangedContent})
	}

	if err := s.tagBlocks(ctx, collab, updates); err != nil {
		return nil, err
	}
	for _, u := range updates {
		batch.Records = append(batch.Records, stamp.update(u.record, u.prev, u.hash, u.blocks))
	}

	for _, re := range rejected {
		metrics.RecordsRejected.WithLabelValues(rejectReason(re.Err)).Inc()
	}
	if len(batch.SkippedRecords) > 0 {
		metrics.RecordsSkipped.Add(float64(len(batch.SkippedRecords)))
		s.logger.Info(ctx, "unchanged records skipped", "count", len(batch.SkippedRecords), "ids", batch.SkippedRecords)
	}

	if err := s.writer.PersistRecordBatch(ctx, batch, collab); err != nil {
		return nil, err
	}

	info := &models.TransferInfo{
		User:           user,
		Version:        batch.Version,
		RecordCount:    len(batch.Records),
		RecordIDs:      make([]string, 0, len(batch.Records)),
		SkippedRecords: batch.SkippedRecords,
		Rejected:       rejected,
	}
	for _, p := range batch.Records {
		info.RecordIDs = append(info.RecordIDs, p.Metadata.ID)
	}
	return info, nil
}

type pendingUpdate struct {
	record    *models.Record
	prev      *models.RecordMetadata
	hash      string
	unchanged bool
	blocks    string
}

// tagBlocks computes the record-blocks tag of every update against the
// stored content of its latest version.
func (s *IngestionService) tagBlocks(ctx context.Context, collab *models.CollaborationContext, updates []pendingUpdate) error {
	errs := workerpool.Each(ctx, s.pool, indexes(len(updates)), func(ctx context.Context, i int) error {
		u := &updates[i]
		switch {
		case !u.prev.HasVersions():
			s.logger.Warn(ctx, "existing record has no versions", "id", u.prev.ID)
			u.blocks = records.BlocksData
			return nil
		case u.unchanged:
			if !sameEnvelope(u.prev, u.record) {
				u.blocks = records.BlocksMetadata
			}
			return nil
		}

		prior, err := s.readContent(ctx, collab, u.prev.LatestLocator())
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "latest content version missing", "id", u.prev.ID, "locator", u.prev.LatestLocator())
			prior = nil
		} else if err != nil {
			return err
		}

		blocks, err := records.Diff(prior, &models.RecordData{Data: u.record.Data, Meta: u.record.Meta})
		if err != nil {
			return fmt.Errorf("%s: %w", u.prev.ID, err)
		}
		u.blocks = blocks
		return nil
	})
	return common.AsStorageFailure("read content", workerpool.Join(errs))
}

func (s *IngestionService) readContent(ctx context.Context, collab *models.CollaborationContext, locator string) (*models.RecordData, error) {
	b, err := s.content.Get(ctx, collab.Key(locator))
	if err != nil {
		return nil, err
	}
	return decodeContent(b)
}

// readMetadata fetches the rows of ids in read-sized batches on the pool.
func (s *IngestionService) readMetadata(ctx context.Context, collab *models.CollaborationContext, ids []string) (map[string]*models.RecordMetadata, error) {
	return batchGet(ctx, s.pool, s.repo, collab, ids, s.readBatch)
}

func batchGet(ctx context.Context, pool *workerpool.Pool, repo metadata.Repository, collab *models.CollaborationContext,
	ids []string, size int) (map[string]*models.RecordMetadata, error) {
	out := make(map[string]*models.RecordMetadata, len(ids))
	var mu sync.Mutex
	errs := workerpool.Each(ctx, pool, workerpool.Chunk(ids, size), func(ctx context.Context, chunk []string) error {
		found, err := repo.BatchGet(ctx, collab, chunk)
		if err != nil {
			return err
		}
		mu.Lock()
		for id, m := range found {
			out[id] = m
		}
		mu.Unlock()
		return nil
	})
	if err := common.AsStorageFailure("read metadata", workerpool.Join(errs)); err != nil {
		return nil, err
	}
	return out, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, common.ErrInvalidAcl):
		return "invalid_acl"
	case errors.Is(err, common.ErrAuthorizationDenied):
		return "unauthorized"
	case errors.Is(err, common.ErrParentNotFound):
		return "parent_not_found"
	case errors.Is(err, common.ErrInvalidLegal):
		return "invalid_legal"
	default:
		return "other"
	}
}

func nonNilData(d map[string]any) map[string]any {
	if d == nil {
		return map[string]any{}
	}
	return d
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
