package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/logging"
	"github.com/dmitrijs2005/recordkeeper/internal/server/entitlements"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/metadata"
	"github.com/dmitrijs2005/recordkeeper/internal/workerpool"
)

// threeVersions ingests opendes:well:1 three times, one minute apart.
func threeVersions(t *testing.T, f *fixture) []int64 {
	t.Helper()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		freezeClock(t, start.Add(time.Duration(i)*time.Minute))
		f.ingestOK(t, false, newRecord("opendes:well:1", map[string]any{"rev": i}))
	}
	return f.repo.Row(nil, "opendes:well:1").Versions()
}

func TestGetRecord(t *testing.T) {
	f := newFixture(t, 25)
	versions := threeVersions(t, f)

	r, err := f.records.GetRecord(ownerCtx(), "opendes:well:1", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, versions[2], r.Version)
	assert.EqualValues(t, 2, r.Data["rev"])
	assert.Equal(t, testKind, r.Kind)

	r, err = f.records.GetRecord(ownerCtx(), "opendes:well:1", versions[0], nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, r.Data["rev"])

	_, err = f.records.GetRecord(ownerCtx(), "opendes:well:1", versions[0]-1, nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = f.records.GetRecord(ownerCtx(), "opendes:well:nope", 0, nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	stranger := entitlements.WithPrincipal(context.Background(), &entitlements.Principal{User: "eve", Groups: []string{"eve@" + testDomain}})
	_, err = f.records.GetRecord(stranger, "opendes:well:1", 0, nil)
	assert.ErrorIs(t, err, common.ErrAuthorizationDenied)
}

func TestSoftDelete(t *testing.T) {
	f := newFixture(t, 25)
	f.ingestOK(t, false, newRecord("opendes:well:1", map[string]any{"a": 1}))

	require.NoError(t, f.records.SoftDelete(ownerCtx(), "opendes:well:1", "bob", nil))

	row := f.repo.Row(nil, "opendes:well:1")
	assert.Equal(t, models.StatusDeleted, row.Status)
	assert.Equal(t, "bob", row.ModifyUser)
	assert.Equal(t, 1, f.content.Len())

	_, err := f.records.GetRecord(ownerCtx(), "opendes:well:1", 0, nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.ErrorIs(t, f.records.SoftDelete(ownerCtx(), "opendes:well:1", "bob", nil), common.ErrorNotFound)

	msgs := f.bus.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.OpDelete, msgs[1].Op)

	// Ingesting again revives the record with a new version.
	f.ingestOK(t, false, newRecord("opendes:well:1", map[string]any{"a": 2}))
	assert.Equal(t, models.StatusActive, f.repo.Row(nil, "opendes:well:1").Status)
}

func TestSoftDelete_ConcurrentUpdateIsLocked(t *testing.T) {
	f := newFixture(t, 25)
	f.ingestOK(t, false, newRecord("opendes:well:1", map[string]any{"a": 1}))
	f.repo.PutHook = func([]*models.RecordMetadata) error {
		f.repo.PutHook = nil
		_, err := f.ingest.CreateOrUpdateRecords(ownerCtx(), false,
			[]*models.Record{newRecord("opendes:well:1", map[string]any{"a": 2})}, "carol", nil)
		return err
	}

	err := f.records.SoftDelete(ownerCtx(), "opendes:well:1", "bob", nil)
	assert.ErrorIs(t, err, common.ErrLocked)
	assert.Equal(t, models.StatusActive, f.repo.Row(nil, "opendes:well:1").Status)
}

func TestPurge(t *testing.T) {
	f := newFixture(t, 25)
	threeVersions(t, f)

	require.NoError(t, f.records.Purge(ownerCtx(), "opendes:well:1", "bob", nil))

	assert.Nil(t, f.repo.Row(nil, "opendes:well:1"))
	assert.Zero(t, f.content.Len())
	msgs := f.bus.Messages()
	assert.Equal(t, models.OpPurge, msgs[len(msgs)-1].Op)
}

func TestPurge_ContentLeftBehindIsReported(t *testing.T) {
	f := newFixture(t, 25)
	f.ingestOK(t, false, newRecord("opendes:well:1", map[string]any{"a": 1}))
	f.content.DeleteHook = func(string) error { return errors.New("delete refused") }

	err := f.records.Purge(ownerCtx(), "opendes:well:1", "bob", nil)

	assert.True(t, common.IsStorageFailure(err))
	assert.Nil(t, f.repo.Row(nil, "opendes:well:1"))
	assert.Equal(t, 1, f.content.Len())
}

func TestPurgeVersions(t *testing.T) {
	f := newFixture(t, 25)
	versions := threeVersions(t, f)

	require.NoError(t, f.records.PurgeVersions(ownerCtx(), "opendes:well:1", 2, "bob", nil))

	row := f.repo.Row(nil, "opendes:well:1")
	assert.Equal(t, []int64{versions[2]}, row.Versions())
	assert.False(t, f.content.Has(models.Locator("opendes:well:1", versions[0])))
	assert.False(t, f.content.Has(models.Locator("opendes:well:1", versions[1])))
	assert.True(t, f.content.Has(models.Locator("opendes:well:1", versions[2])))

	for _, n := range []int{0, 1} {
		err := f.records.PurgeVersions(ownerCtx(), "opendes:well:1", n, "bob", nil)
		assert.ErrorIs(t, err, common.ErrInvalidInput, "n=%d", n)
	}
}

func TestQueryByLegalTag(t *testing.T) {
	f := newFixture(t, 25)
	hidden := newRecord("opendes:well:3", map[string]any{"a": 1})
	hidden.Acl = models.Acl{Viewers: []string{"x@" + testDomain}, Owners: []string{"x@" + testDomain}}
	other := newRecord("opendes:well:4", map[string]any{"a": 1})
	other.Legal.LegalTags = []string{"opendes-private"}
	f.ingestOK(t, false,
		newRecord("opendes:well:1", map[string]any{"a": 1}),
		newRecord("opendes:well:2", map[string]any{"a": 1}),
		hidden, other)

	rows, next, err := f.records.QueryByLegalTag(ownerCtx(), "opendes-public", 10, "", nil)
	require.NoError(t, err)
	assert.Empty(t, next)
	var ids []string
	for _, m := range rows {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"opendes:well:1", "opendes:well:2"}, ids)

	rows, next, err = f.records.QueryByLegalTag(ownerCtx(), "opendes-public", 1, "", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "opendes:well:1", next)

	_, _, err = f.records.QueryByLegalTag(ownerCtx(), "", 10, "", nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

type limitRecorder struct {
	metadata.Repository
	limits []int
}

func (r *limitRecorder) QueryByLegalTag(ctx context.Context, collab *models.CollaborationContext, tag string, limit int,
	cursor string) ([]*models.RecordMetadata, string, error) {
	r.limits = append(r.limits, limit)
	return r.Repository.QueryByLegalTag(ctx, collab, tag, limit, cursor)
}

func TestQueryByLegalTag_NonPositiveLimitUsesDefault(t *testing.T) {
	f := newFixture(t, 25)
	f.ingestOK(t, false,
		newRecord("opendes:well:1", map[string]any{"a": 1}),
		newRecord("opendes:well:2", map[string]any{"a": 1}))

	repo := &limitRecorder{Repository: f.repo}
	svc := NewRecordService(entitlements.NewGroupAuthorizer(testDomain), repo, f.content, f.publisher,
		workerpool.New(2, time.Second), logging.Nop{})

	for _, limit := range []int{0, -5} {
		rows, next, err := svc.QueryByLegalTag(ownerCtx(), "opendes-public", limit, "", nil)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
		assert.Empty(t, next)
	}
	assert.Equal(t, []int{DefaultQueryLimit, DefaultQueryLimit}, repo.limits)
}
