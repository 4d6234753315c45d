package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/logging"
	"github.com/dmitrijs2005/recordkeeper/internal/server/entitlements"
	"github.com/dmitrijs2005/recordkeeper/internal/server/legal"
	"github.com/dmitrijs2005/recordkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
	"github.com/dmitrijs2005/recordkeeper/internal/server/records"
	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/metadata"
	"github.com/dmitrijs2005/recordkeeper/internal/workerpool"
)

// BulkUpdateService patches ACL, legal tags and tags of many records without
// writing new content versions.
type BulkUpdateService struct {
	auth      entitlements.Authorizer
	legal     legal.Checker
	repo      metadata.Repository
	writer    *PersistenceService
	publisher *ChangePublisher
	pool      *workerpool.Pool
	readBatch int
	logger    logging.Logger
}

func NewBulkUpdateService(auth entitlements.Authorizer, lc legal.Checker, repo metadata.Repository, writer *PersistenceService,
	publisher *ChangePublisher, pool *workerpool.Pool, readBatch int, logger logging.Logger) *BulkUpdateService {
	if readBatch <= 0 {
		readBatch = DefaultReadBatchSize
	}
	return &BulkUpdateService{
		auth:      auth,
		legal:     lc,
		repo:      repo,
		writer:    writer,
		publisher: publisher,
		pool:      pool,
		readBatch: readBatch,
		logger:    logger.With("module", "bulk_update"),
	}
}

type bulkTarget struct {
	id       string
	expected int64
	pinned   bool
}

// parseTarget splits "<tenant>:<type>:<id>[:<version>]".
func parseTarget(s string) (bulkTarget, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return bulkTarget{}, fmt.Errorf("%w: %q", common.ErrInvalidRecordID, s)
	}
	if len(parts) > 3 {
		if v, err := strconv.ParseInt(parts[len(parts)-1], 10, 64); err == nil {
			return bulkTarget{id: strings.Join(parts[:len(parts)-1], ":"), expected: v, pinned: true}, nil
		}
	}
	return bulkTarget{id: s}, nil
}

// BulkUpdateRecords applies param.Ops to every target. A target carrying an
// explicit version, or any target whose live version moves before the write,
// is reported as locked and left unchanged. If the write fails the original
// values of every patched record are restored.
func (s *BulkUpdateService) BulkUpdateRecords(ctx context.Context, param models.BulkUpdateParam, user string,
	collab *models.CollaborationContext) (*models.BulkUpdateResult, error) {
	if len(param.IDs) == 0 {
		return nil, fmt.Errorf("%w: no record ids", common.ErrInvalidPatch)
	}
	if err := s.validatePatch(ctx, param.Ops); err != nil {
		return nil, err
	}

	targets := make([]bulkTarget, 0, len(param.IDs))
	seen := make(map[string]struct{}, len(param.IDs))
	ids := make([]string, 0, len(param.IDs))
	for _, raw := range param.IDs {
		t, err := parseTarget(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[t.id]; dup {
			return nil, fmt.Errorf("%w: %s", common.ErrDuplicateID, t.id)
		}
		seen[t.id] = struct{}{}
		targets = append(targets, t)
		ids = append(ids, t.id)
	}

	rows, err := batchGet(ctx, s.pool, s.repo, collab, ids, s.readBatch)
	if err != nil {
		return nil, err
	}

	result := &models.BulkUpdateResult{}
	now := timeNow().UTC()
	expected := make(map[string]int64, len(targets))
	originals := make(map[string]*models.RecordMetadata, len(targets))
	var updated []*models.RecordMetadata

	for _, t := range targets {
		row, ok := rows[t.id]
		switch {
		case !ok || row.Status == models.StatusDeleted:
			result.NotFoundRecordIDs = append(result.NotFoundRecordIDs, t.id)
			continue
		case !s.auth.HasOwnerAccess(ctx, row.Acl):
			result.UnauthorizedRecordIDs = append(result.UnauthorizedRecordIDs, t.id)
			continue
		case t.pinned && t.expected != row.LatestVersion():
			result.LockedRecordIDs = append(result.LockedRecordIDs, t.id)
			continue
		}

		m := row.Clone()
		applyPatch(m, param.Ops)
		if !s.auth.HasValidAcl(ctx, m.Acl) {
			return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidPatch, t.id, common.ErrInvalidAcl)
		}
		if len(m.Legal.LegalTags) == 0 {
			return nil, fmt.Errorf("%w: %s: no legal tags left", common.ErrInvalidLegal, t.id)
		}
		m.ModifyUser = user
		m.ModifyTime = now

		expected[t.id] = row.LatestVersion()
		originals[t.id] = row
		updated = append(updated, m)
	}

	locked, err := s.writer.UpdateMetadata(ctx, updated, expected, collab)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, common.WithSecondary(err, s.restore(ctx, updated, originals, expected, collab))
	}

	lockedSet := make(map[string]struct{}, len(locked))
	for _, id := range locked {
		lockedSet[id] = struct{}{}
	}
	result.LockedRecordIDs = append(result.LockedRecordIDs, locked...)

	var changes []models.RecordChanged
	for _, m := range updated {
		if _, ok := lockedSet[m.ID]; ok {
			continue
		}
		result.RecordIDs = append(result.RecordIDs, m.ID)
		changes = append(changes, models.RecordChanged{
			ID:           m.ID,
			Kind:         m.Kind,
			Op:           models.OpUpdate,
			Version:      m.LatestVersion(),
			ModifiedBy:   user,
			RecordBlocks: records.BlocksMetadata,
		})
	}
	result.RecordCount = len(result.RecordIDs)

	if n := len(result.LockedRecordIDs); n > 0 {
		metrics.RecordsLocked.Add(float64(n))
		s.logger.Info(ctx, "bulk update targets locked", "ids", result.LockedRecordIDs)
	}
	metrics.RecordsCommitted.WithLabelValues(string(models.OpUpdate)).Add(float64(result.RecordCount))
	s.publisher.Publish(ctx, changes, collab)
	return result, nil
}

// restore puts back the ACL, legal tags and tags captured before the patch.
// Only rows still at their expected version are touched.
func (s *BulkUpdateService) restore(ctx context.Context, updated []*models.RecordMetadata, originals map[string]*models.RecordMetadata,
	expected map[string]int64, collab *models.CollaborationContext) error {
	ctx = context.WithoutCancel(ctx)
	s.logger.Warn(ctx, "bulk update failed, restoring original values", "records", len(updated))

	rollback := make([]*models.RecordMetadata, 0, len(updated))
	for _, m := range updated {
		orig := originals[m.ID]
		r := m.Clone()
		r.Acl = orig.Acl.Clone()
		r.Legal = orig.Legal.Clone()
		r.Tags = cloneTags(orig.Tags)
		r.ModifyUser = orig.ModifyUser
		r.ModifyTime = orig.ModifyTime
		rollback = append(rollback, r)
	}

	if _, err := s.writer.UpdateMetadata(ctx, rollback, expected, collab); err != nil {
		metrics.Compensations.WithLabelValues("bulk", "failed").Inc()
		s.logger.Error(ctx, "restore failed", "error", err)
		return err
	}
	metrics.Compensations.WithLabelValues("bulk", "ok").Inc()
	return nil
}
