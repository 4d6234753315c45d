package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/recordkeeper/internal/logging"
	"github.com/dmitrijs2005/recordkeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/recordkeeper/internal/server/entitlements"
	"github.com/dmitrijs2005/recordkeeper/internal/server/legal"
	"github.com/dmitrijs2005/recordkeeper/internal/server/messagebus"
	"github.com/dmitrijs2005/recordkeeper/internal/server/models"
	"github.com/dmitrijs2005/recordkeeper/internal/server/repositories/metadata"
	"github.com/dmitrijs2005/recordkeeper/internal/server/validation"
	"github.com/dmitrijs2005/recordkeeper/internal/workerpool"
)

const (
	testKind   = "opendes:wks:well:1.0.0"
	testDomain = "opendes.example.com"
	viewers    = "data.viewers@" + testDomain
	owners     = "data.owners@" + testDomain
)

type fixture struct {
	repo      *metadata.MemoryRepository
	content   *blobstore.MemoryStore
	bus       *messagebus.MemoryBus
	publisher *ChangePublisher
	writer    *PersistenceService
	ingest    *IngestionService
	bulk      *BulkUpdateService
	records   *RecordService
}

func newFixture(t *testing.T, writeBatch int) *fixture {
	t.Helper()

	f := &fixture{
		repo:    metadata.NewMemoryRepository(),
		content: blobstore.NewMemoryStore(),
		bus:     messagebus.NewMemoryBus(),
	}
	log := logging.Nop{}
	pool := workerpool.New(8, time.Second)
	auth := entitlements.NewGroupAuthorizer(testDomain)
	lc := legal.NewCachedChecker(legal.NewStaticSource(nil, nil), legal.NewCache(64, time.Minute))
	validator := validation.New("opendes", auth, lc, f.repo, pool, 10, log)

	f.publisher = NewChangePublisher(f.bus, 10, log)
	f.writer = NewPersistenceService(f.content, f.repo, pool, writeBatch, f.publisher, log)
	f.ingest = NewIngestionService(validator, auth, f.repo, f.content, f.writer, pool, 10, log)
	f.bulk = NewBulkUpdateService(auth, lc, f.repo, f.writer, f.publisher, pool, 10, log)
	f.records = NewRecordService(auth, f.repo, f.content, f.publisher, pool, log)
	return f
}

// ownerCtx authenticates as a member of both default ACL groups.
func ownerCtx() context.Context {
	return entitlements.WithPrincipal(context.Background(), &entitlements.Principal{
		User:   "alice",
		Groups: []string{viewers, owners},
	})
}

func newRecord(id string, data map[string]any) *models.Record {
	return &models.Record{
		ID:    id,
		Kind:  testKind,
		Data:  data,
		Acl:   models.Acl{Viewers: []string{viewers}, Owners: []string{owners}},
		Legal: models.Legal{LegalTags: []string{"opendes-public"}, OtherRelevantDataCountries: []string{"US"}},
	}
}

// ingest commits recs as alice and fails the test on error.
func (f *fixture) ingestOK(t *testing.T, skipDupes bool, recs ...*models.Record) *models.TransferInfo {
	t.Helper()
	info, err := f.ingest.CreateOrUpdateRecords(ownerCtx(), skipDupes, recs, "alice", nil)
	if err != nil {
		t.Fatalf("CreateOrUpdateRecords: %v", err)
	}
	return info
}

// freezeClock pins timeNow for the duration of the test.
func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = prev })
}
