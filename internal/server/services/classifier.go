package services

import (
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

// versionStamp assigns record versions within one request. All records of a
// batch share the stamp unless an existing row is already at or past it.
type versionStamp struct {
	version int64
	now     time.Time
	user    string
}

func newVersionStamp(now time.Time, user string) versionStamp {
	return versionStamp{version: now.UnixMicro(), now: now.UTC(), user: user}
}

// next returns a version strictly greater than every version of prev.
func (s versionStamp) next(prev *models.RecordMetadata) int64 {
	if prev == nil {
		return s.version
	}
	return max(s.version, prev.LatestVersion()+1)
}

func (s versionStamp) create(r *models.Record, hash string) *models.RecordProcessing {
	v := s.next(nil)
	r.Version = v
	m := &models.RecordMetadata{
		ID:           r.ID,
		Kind:         r.Kind,
		Status:       models.StatusActive,
		User:         s.user,
		CreateTime:   s.now,
		ContentHash:  hash,
		Acl:          r.Acl.Clone(),
		Legal:        r.Legal.Clone(),
		Ancestry:     cloneAncestry(r.Ancestry),
		Tags:         cloneTags(r.Tags),
		VersionPaths: []string{models.Locator(r.ID, v)},
	}
	return &models.RecordProcessing{
		Data:      &models.RecordData{Data: r.Data, Meta: r.Meta},
		Metadata:  m,
		Operation: models.OpCreate,
	}
}

// update appends a new version to prev. Creation user and time are kept.
func (s versionStamp) update(r *models.Record, prev *models.RecordMetadata, hash, blocks string) *models.RecordProcessing {
	v := s.next(prev)
	r.Version = v

	m := prev.Clone()
	m.Kind = r.Kind
	m.PreviousVersionKind = ""
	if prev.Kind != r.Kind {
		m.PreviousVersionKind = prev.Kind
	}
	m.Status = models.StatusActive
	m.ModifyUser = s.user
	m.ModifyTime = s.now
	m.ContentHash = hash
	m.Acl = r.Acl.Clone()
	m.Legal = r.Legal.Clone()
	m.Ancestry = cloneAncestry(r.Ancestry)
	m.Tags = cloneTags(r.Tags)
	m.VersionPaths = append(m.VersionPaths, models.Locator(r.ID, v))

	return &models.RecordProcessing{
		Data:         &models.RecordData{Data: r.Data, Meta: r.Meta},
		Metadata:     m,
		Operation:    models.OpUpdate,
		RecordBlocks: blocks,
		Previous:     prev,
	}
}

// sameEnvelope reports whether everything stored alongside the content is
// unchanged: kind, status, ACL, legal, ancestry and tags.
func sameEnvelope(prev *models.RecordMetadata, r *models.Record) bool {
	if prev.Kind != r.Kind || prev.Status != models.StatusActive {
		return false
	}
	opts := cmpopts.EquateEmpty()
	var prevParents, curParents []string
	if prev.Ancestry != nil {
		prevParents = prev.Ancestry.Parents
	}
	if r.Ancestry != nil {
		curParents = r.Ancestry.Parents
	}
	return cmp.Equal(prev.Acl, r.Acl, opts) &&
		cmp.Equal(prev.Legal.LegalTags, r.Legal.LegalTags, opts) &&
		cmp.Equal(prev.Legal.OtherRelevantDataCountries, r.Legal.OtherRelevantDataCountries, opts) &&
		cmp.Equal(prevParents, curParents, opts) &&
		cmp.Equal(prev.Tags, r.Tags, opts)
}

func cloneAncestry(a *models.Ancestry) *models.Ancestry {
	if a == nil {
		return nil
	}
	return &models.Ancestry{Parents: append([]string(nil), a.Parents...)}
}

func cloneTags(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
