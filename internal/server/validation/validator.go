// Package validation rejects malformed or unauthorized ingestion input before
// any store is written.
package validation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/logging"
	"github.com/dmitrijs2005/recordkeeper/internal/server/entitlements"
	"github.com/dmitrijs2005/recordkeeper/internal/server/legal"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/metadata"
	"github.com/dmitrijs2005/recordkeeper/internal/workerpool"
)

var (
	kindPattern = regexp.MustCompile(`^[\w\-\.]+:[\w\-\.]+:[\w\-\.]+:[0-9]+\.[0-9]+\.[0-9]+$`)
	idPattern   = regexp.MustCompile(`^[\w\-\.]+:[\w\-\.]+:[\w\-\.\:\%]+$`)
)

// IsValidKind reports whether kind has the form
// "<authority>:<source>:<entityType>:<major>.<minor>.<patch>".
func IsValidKind(kind string) bool {
	return kindPattern.MatchString(kind)
}

// EntityType returns the third segment of a kind.
func EntityType(kind string) string {
	parts := strings.Split(kind, ":")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

// Validator checks ingestion requests.
type Validator struct {
	tenant    string
	auth      entitlements.Authorizer
	legal     legal.Checker
	repo      metadata.Repository
	pool      *workerpool.Pool
	readBatch int
	logger    logging.Logger
}

func New(tenant string, auth entitlements.Authorizer, lc legal.Checker, repo metadata.Repository, pool *workerpool.Pool,
	readBatch int, logger logging.Logger) *Validator {
	return &Validator{
		tenant:    tenant,
		auth:      auth,
		legal:     lc,
		repo:      repo,
		pool:      pool,
		readBatch: readBatch,
		logger:    logger.With("module", "validator"),
	}
}

// ValidateRequest applies the checks whose failure means the request itself
// is malformed: kind grammar, id format and in-request id uniqueness. Records
// without an id get a generated one.
func (v *Validator) ValidateRequest(records []*models.Record) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r == nil {
			return fmt.Errorf("%w: record #%d is empty", common.ErrInvalidInput, i)
		}
		if !IsValidKind(r.Kind) {
			return fmt.Errorf("%w: %q", common.ErrInvalidKind, r.Kind)
		}
		if r.ID == "" {
			r.ID = v.NewID(r.Kind)
		} else if err := v.checkID(r.ID); err != nil {
			return err
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: %s", common.ErrDuplicateID, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// NewID generates "<tenant>:<entityType>:<random>" for kind.
func (v *Validator) NewID(kind string) string {
	return v.tenant + ":" + EntityType(kind) + ":" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (v *Validator) checkID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q does not match <tenant>:<type>:<id>", common.ErrInvalidRecordID, id)
	}
	if !strings.HasPrefix(id, v.tenant+":") {
		return fmt.Errorf("%w: %q does not belong to tenant %s", common.ErrInvalidRecordID, id, v.tenant)
	}
	return nil
}

// ValidateRecords applies per-record business checks: ACL domain, legal
// inheritance and validity, ancestry. Failing records are returned as
// rejections and excluded; err is non-nil only when a lookup itself failed.
func (v *Validator) ValidateRecords(ctx context.Context, collab *models.CollaborationContext, records []*models.Record) ([]*models.Record, []*common.RecordError, error) {
	parents, err := v.fetchParents(ctx, collab, records)
	if err != nil {
		return nil, nil, err
	}

	var accepted []*models.Record
	var rejected []*common.RecordError
	for _, r := range records {
		if err := v.validateRecord(ctx, r, parents); err != nil {
			if !recordLevel(err) {
				return nil, nil, err
			}
			v.logger.Warn(ctx, "record rejected", "id", r.ID, "error", err)
			rejected = append(rejected, common.NewRecordError(r.ID, err))
			continue
		}
		accepted = append(accepted, r)
	}
	return accepted, rejected, nil
}

func (v *Validator) validateRecord(ctx context.Context, r *models.Record, parents map[string]*models.RecordMetadata) error {
	if !v.auth.HasValidAcl(ctx, r.Acl) {
		return common.ErrInvalidAcl
	}

	if r.Ancestry != nil && len(r.Ancestry.Parents) > 0 {
		if err := inheritLegal(r, parents); err != nil {
			return err
		}
	}

	if err := v.legal.ValidateLegalTags(ctx, r.Legal.LegalTags); err != nil {
		return err
	}
	if err := v.legal.ValidateCountries(ctx, r.Legal.OtherRelevantDataCountries); err != nil {
		return err
	}
	r.Legal.Status = models.ComplianceCompliant
	return nil
}

func recordLevel(err error) bool {
	return errors.Is(err, common.ErrAuthorizationDenied) ||
		errors.Is(err, common.ErrParentNotFound) ||
		errors.Is(err, common.ErrInvalidLegal)
}

// inheritLegal merges the legal tags and countries of every parent version
// into r.
func inheritLegal(r *models.Record, parents map[string]*models.RecordMetadata) error {
	tags := newOrderedSet(r.Legal.LegalTags)
	countries := newOrderedSet(r.Legal.OtherRelevantDataCountries)

	for _, ref := range r.Ancestry.Parents {
		id, version, ok := models.SplitVersionedID(ref)
		if !ok {
			return fmt.Errorf("%w: malformed parent reference %q", common.ErrParentNotFound, ref)
		}
		p, found := parents[id]
		if !found || !p.HasVersion(version) {
			return fmt.Errorf("%w: %s", common.ErrParentNotFound, ref)
		}
		tags.add(p.Legal.LegalTags...)
		countries.add(p.Legal.OtherRelevantDataCountries...)
	}

	r.Legal.LegalTags = tags.items
	r.Legal.OtherRelevantDataCountries = countries.items
	return nil
}

func (v *Validator) fetchParents(ctx context.Context, collab *models.CollaborationContext, records []*models.Record) (map[string]*models.RecordMetadata, error) {
	ids := newOrderedSet(nil)
	for _, r := range records {
		if r.Ancestry == nil {
			continue
		}
		for _, ref := range r.Ancestry.Parents {
			if id, _, ok := models.SplitVersionedID(ref); ok {
				ids.add(id)
			}
		}
	}

	out := make(map[string]*models.RecordMetadata, len(ids.items))
	var mu sync.Mutex
	errs := workerpool.Each(ctx, v.pool, workerpool.Chunk(ids.items, v.readBatch), func(ctx context.Context, chunk []string) error {
		found, err := v.repo.BatchGet(ctx, collab, chunk)
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
	if err := common.AsStorageFailure("fetch parents", workerpool.Join(errs)); err != nil {
		return nil, err
	}
	return out, nil
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet(initial []string) *orderedSet {
	s := &orderedSet{seen: make(map[string]struct{})}
	s.add(initial...)
	return s
}

func (s *orderedSet) add(vals ...string) {
	for _, v := range vals {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}
