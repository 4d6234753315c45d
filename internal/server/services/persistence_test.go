package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
)

func TestPersist_MetadataFailureDeletesNewContent(t *testing.T) {
	f := newFixture(t, 1)
	v1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	freezeClock(t, v1)
	f.ingestOK(t, false, newRecord("opendes:well:a", map[string]any{"rev": 1}))
	oldLoc := models.Locator("opendes:well:a", v1.UnixMicro())

	v2 := v1.Add(time.Minute)
	freezeClock(t, v2)
	f.repo.PutHook = func(items []*models.RecordMetadata) error {
		if items[0].ID == "opendes:well:b" {
			return errors.New("throttled")
		}
		return nil
	}
	before := testutil.ToFloat64(metrics.Compensations.WithLabelValues("ingest", "ok"))

	_, err := f.ingest.CreateOrUpdateRecords(ownerCtx(), false, []*models.Record{
		newRecord("opendes:well:a", map[string]any{"rev": 2}),
		newRecord("opendes:well:b", map[string]any{"rev": 1}),
	}, "alice", nil)

	require.Error(t, err)
	assert.True(t, common.IsStorageFailure(err))
	assert.ErrorContains(t, err, "throttled")

	row := f.repo.Row(nil, "opendes:well:a")
	require.NotNil(t, row)
	assert.Equal(t, []string{oldLoc}, row.VersionPaths)
	assert.Nil(t, f.repo.Row(nil, "opendes:well:b"))

	for _, id := range []string{"opendes:well:a", "opendes:well:b"} {
		_, err := f.content.Get(context.Background(), models.Locator(id, v2.UnixMicro()))
		assert.ErrorIs(t, err, common.ErrorNotFound, id)
	}
	assert.True(t, f.content.Has(oldLoc))
	assert.Len(t, f.bus.Messages(), 1)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Compensations.WithLabelValues("ingest", "ok")))
}

func TestPersist_ContentFailureSkipsMetadata(t *testing.T) {
	f := newFixture(t, 25)
	freezeClock(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	f.content.PutHook = func(key string) error {
		if key == models.Locator("opendes:well:2", timeNow().UnixMicro()) {
			return errors.New("bucket unavailable")
		}
		return nil
	}

	_, err := f.ingest.CreateOrUpdateRecords(ownerCtx(), false, []*models.Record{
		newRecord("opendes:well:1", map[string]any{"a": 1}),
		newRecord("opendes:well:2", map[string]any{"a": 2}),
	}, "alice", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStorageFailure)
	assert.ErrorContains(t, err, "bucket unavailable")
	assert.Nil(t, f.repo.Row(nil, "opendes:well:1"))
	assert.Nil(t, f.repo.Row(nil, "opendes:well:2"))
	assert.Empty(t, f.bus.Messages())
}

func TestPersist_UnprocessedItemsEscalate(t *testing.T) {
	f := newFixture(t, 3)
	f.repo.Capacity = 1

	_, err := f.ingest.CreateOrUpdateRecords(ownerCtx(), false, []*models.Record{
		newRecord("opendes:well:1", map[string]any{"a": 1}),
		newRecord("opendes:well:2", map[string]any{"a": 2}),
		newRecord("opendes:well:3", map[string]any{"a": 3}),
	}, "alice", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPartialBatchFailure)
	for _, id := range []string{"opendes:well:1", "opendes:well:2", "opendes:well:3"} {
		assert.Nil(t, f.repo.Row(nil, id), id)
	}
	assert.Zero(t, f.content.Len())
	assert.Empty(t, f.bus.Messages())
}

func TestPersist_BatchLimitSplitsWrites(t *testing.T) {
	f := newFixture(t, 2)
	f.repo.Capacity = 2

	var recs []*models.Record
	for i := 0; i < 7; i++ {
		recs = append(recs, newRecord(fmt.Sprintf("opendes:well:%d", i), map[string]any{"i": i}))
	}
	info := f.ingestOK(t, false, recs...)

	assert.Equal(t, 7, info.RecordCount)
	for _, r := range recs {
		assert.NotNil(t, f.repo.Row(nil, r.ID), r.ID)
	}
	assert.Len(t, f.bus.Messages(), 7)
}

func TestPersist_CompensationFailureIsAttached(t *testing.T) {
	f := newFixture(t, 25)
	f.repo.PutHook = func([]*models.RecordMetadata) error { return errors.New("metadata down") }
	f.content.DeleteHook = func(string) error { return errors.New("delete refused") }
	before := testutil.ToFloat64(metrics.Compensations.WithLabelValues("ingest", "failed"))

	_, err := f.ingest.CreateOrUpdateRecords(ownerCtx(), false,
		[]*models.Record{newRecord("opendes:well:1", map[string]any{"a": 1})}, "alice", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStorageFailure)
	assert.ErrorContains(t, err, "metadata down")

	var ce *common.CompensationError
	require.True(t, errors.As(err, &ce))
	assert.ErrorContains(t, ce.Secondary, "delete refused")
	assert.Equal(t, 1, f.content.Len())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Compensations.WithLabelValues("ingest", "failed")))
}

func TestPersist_UnrestoredRowKeepsItsContent(t *testing.T) {
	f := newFixture(t, 1)
	v1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	freezeClock(t, v1)
	f.ingestOK(t, false, newRecord("opendes:well:a", map[string]any{"rev": 1}))

	v2 := v1.Add(time.Minute)
	freezeClock(t, v2)
	f.repo.PutHook = func(items []*models.RecordMetadata) error {
		switch {
		case items[0].ID == "opendes:well:b":
			return errors.New("throttled")
		case items[0].ID == "opendes:well:a" && len(items[0].VersionPaths) == 1:
			return errors.New("restore down")
		}
		return nil
	}
	before := testutil.ToFloat64(metrics.Compensations.WithLabelValues("ingest", "failed"))

	_, err := f.ingest.CreateOrUpdateRecords(ownerCtx(), false, []*models.Record{
		newRecord("opendes:well:a", map[string]any{"rev": 2}),
		newRecord("opendes:well:b", map[string]any{"rev": 1}),
	}, "alice", nil)

	require.Error(t, err)
	assert.ErrorContains(t, err, "throttled")

	var ce *common.CompensationError
	require.True(t, errors.As(err, &ce))
	assert.ErrorContains(t, ce.Secondary, "restore down")
	assert.ErrorContains(t, ce.Secondary, "content kept")
	assert.NotContains(t, ce.Secondary.Error(), "\n")

	newLoc := models.Locator("opendes:well:a", v2.UnixMicro())
	row := f.repo.Row(nil, "opendes:well:a")
	require.NotNil(t, row)
	require.Equal(t, newLoc, row.VersionPaths[len(row.VersionPaths)-1])
	for _, loc := range row.VersionPaths {
		assert.True(t, f.content.Has(loc), loc)
	}

	assert.Nil(t, f.repo.Row(nil, "opendes:well:b"))
	assert.False(t, f.content.Has(models.Locator("opendes:well:b", v2.UnixMicro())))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Compensations.WithLabelValues("ingest", "failed")))
}

func TestPersist_CallerCancelSkipsCompensation(t *testing.T) {
	f := newFixture(t, 25)
	ctx, cancel := context.WithCancel(ownerCtx())
	defer cancel()
	f.content.PutHook = func(string) error {
		cancel()
		return nil
	}

	_, err := f.ingest.CreateOrUpdateRecords(ctx, false,
		[]*models.Record{newRecord("opendes:well:1", map[string]any{"a": 1})}, "alice", nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.content.Len())
	assert.Nil(t, f.repo.Row(nil, "opendes:well:1"))
}

func TestPersist_PublishFailureKeepsCommit(t *testing.T) {
	f := newFixture(t, 25)
	f.bus.PublishHook = func([]models.RecordChanged) error { return errors.New("broker gone") }
	before := testutil.ToFloat64(metrics.PublishFailures)

	info := f.ingestOK(t, false, newRecord("opendes:well:1", map[string]any{"a": 1}))

	assert.Equal(t, 1, info.RecordCount)
	assert.NotNil(t, f.repo.Row(nil, "opendes:well:1"))
	assert.Equal(t, 1, f.content.Len())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PublishFailures))
}

func TestUpdateMetadata_ReportsLocked(t *testing.T) {
	f := newFixture(t, 25)
	f.ingestOK(t, false,
		newRecord("opendes:well:1", map[string]any{"a": 1}),
		newRecord("opendes:well:2", map[string]any{"a": 2}))

	one := f.repo.Row(nil, "opendes:well:1")
	two := f.repo.Row(nil, "opendes:well:2")
	one.Tags = map[string]string{"k": "v"}
	two.Tags = map[string]string{"k": "v"}

	locked, err := f.writer.UpdateMetadata(context.Background(), []*models.RecordMetadata{one, two}, map[string]int64{
		one.ID: one.LatestVersion(),
		two.ID: two.LatestVersion() - 1,
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"opendes:well:2"}, locked)
	assert.Equal(t, "v", f.repo.Row(nil, "opendes:well:1").Tags["k"])
	assert.Empty(t, f.repo.Row(nil, "opendes:well:2").Tags)
}
