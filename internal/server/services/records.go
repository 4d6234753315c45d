package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/logging"
	"github.com/dmitrijs2005/recordkeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/recordkeeper/internal/server/entitlements"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/metadata"
	"github.com/dmitrijs2005/recordkeeper/internal/workerpool"
)

// RecordService reads records and removes them or their old versions.
type RecordService struct {
	auth      entitlements.Authorizer
	repo      metadata.Repository
	content   blobstore.Store
	publisher *ChangePublisher
	pool      *workerpool.Pool
	logger    logging.Logger
}

func NewRecordService(auth entitlements.Authorizer, repo metadata.Repository, content blobstore.Store,
	publisher *ChangePublisher, pool *workerpool.Pool, logger logging.Logger) *RecordService {
	return &RecordService{
		auth:      auth,
		repo:      repo,
		content:   content,
		publisher: publisher,
		pool:      pool,
		logger:    logger.With("module", "records"),
	}
}

func (s *RecordService) row(ctx context.Context, id string, collab *models.CollaborationContext) (*models.RecordMetadata, error) {
	rows, err := s.repo.BatchGet(ctx, collab, []string{id})
	if err != nil {
		return nil, common.AsStorageFailure("read metadata", err)
	}
	m, ok := rows[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, common.ErrorNotFound)
	}
	return m, nil
}

// GetRecord returns the given version of an active record, or its latest
// version when version is 0.
func (s *RecordService) GetRecord(ctx context.Context, id string, version int64, collab *models.CollaborationContext) (*models.Record, error) {
	m, err := s.row(ctx, id, collab)
	if err != nil {
		return nil, err
	}
	if m.Status != models.StatusActive || !m.HasVersions() {
		return nil, fmt.Errorf("record %s: %w", id, common.ErrorNotFound)
	}
	if !s.auth.HasAccess(ctx, m) {
		return nil, fmt.Errorf("record %s: %w", id, common.ErrAuthorizationDenied)
	}

	if version == 0 {
		version = m.LatestVersion()
	} else if !m.HasVersion(version) {
		return nil, fmt.Errorf("record %s version %d: %w", id, version, common.ErrorNotFound)
	}

	b, err := s.content.Get(ctx, collab.Key(models.Locator(id, version)))
	if errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("record %s version %d: %w", id, version, err)
	}
	if err != nil {
		return nil, common.AsStorageFailure("read content", err)
	}
	d, err := decodeContent(b)
	if err != nil {
		return nil, err
	}

	return &models.Record{
		ID:       id,
		Kind:     m.Kind,
		Version:  version,
		Data:     d.Data,
		Meta:     d.Meta,
		Acl:      m.Acl,
		Legal:    m.Legal,
		Ancestry: m.Ancestry,
		Tags:     m.Tags,
	}, nil
}

// SoftDelete marks an active record deleted. Its versions stay in place.
func (s *RecordService) SoftDelete(ctx context.Context, id, user string, collab *models.CollaborationContext) error {
	m, err := s.row(ctx, id, collab)
	if err != nil {
		return err
	}
	if m.Status == models.StatusDeleted {
		return fmt.Errorf("record %s: %w", id, common.ErrorNotFound)
	}
	if !s.auth.HasOwnerAccess(ctx, m.Acl) {
		return fmt.Errorf("record %s: %w", id, common.ErrAuthorizationDenied)
	}

	updated := m.Clone()
	updated.Status = models.StatusDeleted
	updated.ModifyUser = user
	updated.ModifyTime = timeNow().UTC()
	if err := s.putIfLatest(ctx, updated, m.LatestVersion(), collab); err != nil {
		return err
	}

	s.publisher.Publish(ctx, []models.RecordChanged{{
		ID: id, Kind: m.Kind, Op: models.OpDelete, Version: m.LatestVersion(), ModifiedBy: user,
	}}, collab)
	return nil
}

// Purge removes the metadata row of a record and then every content version.
// Content left behind by a failed delete is unreachable and reported.
func (s *RecordService) Purge(ctx context.Context, id, user string, collab *models.CollaborationContext) error {
	m, err := s.row(ctx, id, collab)
	if err != nil {
		return err
	}
	if !s.auth.HasOwnerAccess(ctx, m.Acl) {
		return fmt.Errorf("record %s: %w", id, common.ErrAuthorizationDenied)
	}

	if err := s.repo.BatchDelete(ctx, collab, []string{id}); err != nil {
		return common.AsStorageFailure("delete metadata", err)
	}
	s.publisher.Publish(ctx, []models.RecordChanged{{
		ID: id, Kind: m.Kind, Op: models.OpPurge, ModifiedBy: user,
	}}, collab)

	return s.deleteContent(ctx, m.VersionPaths, collab)
}

// PurgeVersions removes the oldest n versions of a record. The latest version
// always survives, so n must be less than the number of versions.
func (s *RecordService) PurgeVersions(ctx context.Context, id string, n int, user string, collab *models.CollaborationContext) error {
	m, err := s.row(ctx, id, collab)
	if err != nil {
		return err
	}
	if n <= 0 || n >= len(m.VersionPaths) {
		return fmt.Errorf("%w: cannot purge %d of %d versions", common.ErrInvalidInput, n, len(m.VersionPaths))
	}
	if !s.auth.HasOwnerAccess(ctx, m.Acl) {
		return fmt.Errorf("record %s: %w", id, common.ErrAuthorizationDenied)
	}

	purged := append([]string(nil), m.VersionPaths[:n]...)
	updated := m.Clone()
	updated.VersionPaths = updated.VersionPaths[n:]
	updated.ModifyUser = user
	updated.ModifyTime = timeNow().UTC()
	if err := s.putIfLatest(ctx, updated, m.LatestVersion(), collab); err != nil {
		return err
	}

	return s.deleteContent(ctx, purged, collab)
}

// DefaultQueryLimit is the page size used when the caller asks for none.
const DefaultQueryLimit = 100

// QueryByLegalTag returns one page of records carrying tag that the caller
// may read. A non-positive limit means DefaultQueryLimit.
func (s *RecordService) QueryByLegalTag(ctx context.Context, tag string, limit int, cursor string,
	collab *models.CollaborationContext) ([]*models.RecordMetadata, string, error) {
	if tag == "" {
		return nil, "", fmt.Errorf("%w: empty legal tag", common.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	rows, next, err := s.repo.QueryByLegalTag(ctx, collab, tag, limit, cursor)
	if err != nil {
		return nil, "", common.AsStorageFailure("query metadata", err)
	}
	out := rows[:0]
	for _, m := range rows {
		if m.Status == models.StatusActive && s.auth.HasAccess(ctx, m) {
			out = append(out, m)
		}
	}
	return out, next, nil
}

func (s *RecordService) putIfLatest(ctx context.Context, m *models.RecordMetadata, expected int64, collab *models.CollaborationContext) error {
	err := s.repo.PutIfLatest(ctx, collab, m, expected)
	if errors.Is(err, common.ErrVersionConflict) {
		return fmt.Errorf("record %s: %w", m.ID, common.ErrLocked)
	}
	if err != nil {
		return common.AsStorageFailure("write metadata", err)
	}
	return nil
}

func (s *RecordService) deleteContent(ctx context.Context, locators []string, collab *models.CollaborationContext) error {
	errs := workerpool.Each(ctx, s.pool, locators, func(ctx context.Context, loc string) error {
		if err := s.content.Delete(ctx, collab.Key(loc)); err != nil {
			return fmt.Errorf("%s: %w", loc, err)
		}
		return nil
	})
	if err := workerpool.Join(errs); err != nil {
		s.logger.Error(ctx, "content versions left behind", "error", err)
		return common.AsStorageFailure("delete content", err)
	}
	return nil
}
