package sqlstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-broker/core"
	sqlstore "github.com/goliatone/go-broker/store/sql"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

func TestCacheRecordCacheKey(t *testing.T) {
	cases := map[string]string{
		"uid.utid":   "go-broker::cache_records::v1::uid.utid",
		" uid.utid ": "go-broker::cache_records::v1::uid.utid",
		"a/b c":      "go-broker::cache_records::v1::a%2Fb%20c",
		"":           "go-broker::cache_records::v1::_all",
	}
	for input, want := range cases {
		if got := sqlstore.CacheRecordCacheKey(input); got != want {
			t.Fatalf("key for %q: want %q, got %q", input, want, got)
		}
	}
}

func TestCachedCacheRecordStore_ServesRepeatReadsFromCache(t *testing.T) {
	base := &countingRecordStore{records: map[string][]core.CacheRecord{
		"uid.utid": accountRecords("uid.utid", "utid"),
	}}
	store, err := sqlstore.NewCachedCacheRecordStore(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		records, listErr := store.ListRecordsForAccount(ctx, "uid.utid")
		if listErr != nil {
			t.Fatalf("list records: %v", listErr)
		}
		if len(records) != 4 {
			t.Fatalf("expected 4 records, got %d", len(records))
		}
	}
	if calls := base.listCalls(); calls != 1 {
		t.Fatalf("expected one base read, got %d", calls)
	}
}

func TestCachedCacheRecordStore_SaveInvalidatesAccountAndAll(t *testing.T) {
	base := &countingRecordStore{records: map[string][]core.CacheRecord{
		"uid.utid": accountRecords("uid.utid", "utid")[:1],
	}}
	store, err := sqlstore.NewCachedCacheRecordStore(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.ListRecordsForAccount(ctx, "uid.utid"); err != nil {
		t.Fatalf("warm account key: %v", err)
	}
	if _, err := store.ListRecordsForAccount(ctx, ""); err != nil {
		t.Fatalf("warm all key: %v", err)
	}
	if err := store.SaveRecords(ctx, accountRecords("uid.utid", "utid")[1:]...); err != nil {
		t.Fatalf("save records: %v", err)
	}

	records, err := store.ListRecordsForAccount(ctx, "uid.utid")
	if err != nil {
		t.Fatalf("list after save: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected refreshed account records, got %d", len(records))
	}
	all, err := store.ListRecordsForAccount(ctx, "")
	if err != nil {
		t.Fatalf("list all after save: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected refreshed all-accounts list, got %d", len(all))
	}
	if calls := base.listCalls(); calls != 4 {
		t.Fatalf("expected 4 base reads, got %d", calls)
	}
}

func TestCachedCacheRecordStore_DeleteInvalidates(t *testing.T) {
	base := &countingRecordStore{records: map[string][]core.CacheRecord{
		"uid.utid": accountRecords("uid.utid", "utid"),
	}}
	store, err := sqlstore.NewCachedCacheRecordStore(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	ctx := context.Background()
	if _, err := store.ListRecordsForAccount(ctx, "uid.utid"); err != nil {
		t.Fatalf("warm account key: %v", err)
	}
	deleted, err := store.DeleteAccount(ctx, "uid.utid")
	if err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("expected 4 deleted records, got %d", deleted)
	}
	records, err := store.ListRecordsForAccount(ctx, "uid.utid")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records after delete, got %d", len(records))
	}
}

func TestCachedCacheRecordStore_SaveErrorSkipsInvalidation(t *testing.T) {
	base := &countingRecordStore{saveErr: errors.New("write failed")}
	store, err := sqlstore.NewCachedCacheRecordStore(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	if err := store.SaveRecords(context.Background(), accountRecords("uid.utid", "utid")...); err == nil {
		t.Fatalf("expected save error")
	}
}

func TestNewCachedCacheRecordStore_RequiresDependencies(t *testing.T) {
	if _, err := sqlstore.NewCachedCacheRecordStore(nil, newTestCacheService(t)); err == nil {
		t.Fatalf("expected error for nil base store")
	}
	if _, err := sqlstore.NewCachedCacheRecordStore(&countingRecordStore{}, nil); err == nil {
		t.Fatalf("expected error for nil cache service")
	}
}

func TestRepositoryFactory_CachedCacheStoreOverSQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store, err := factory.CachedCacheStore(core.CacheConfig{TTLSeconds: 60})
	if err != nil {
		t.Fatalf("cached cache store: %v", err)
	}
	ctx := context.Background()
	if err := store.SaveRecords(ctx, accountRecords("uid.utid", "utid")...); err != nil {
		t.Fatalf("save records: %v", err)
	}
	records, err := store.ListRecordsForAccount(ctx, "uid.utid")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
}

type countingRecordStore struct {
	mu      sync.Mutex
	records map[string][]core.CacheRecord
	lists   int
	saveErr error
}

func (s *countingRecordStore) ListRecordsForAccount(_ context.Context, homeAccountID string) ([]core.CacheRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	if homeAccountID != "" {
		return append([]core.CacheRecord(nil), s.records[homeAccountID]...), nil
	}
	out := []core.CacheRecord{}
	for _, records := range s.records {
		out = append(out, records...)
	}
	return out, nil
}

func (s *countingRecordStore) SaveRecords(_ context.Context, records ...core.CacheRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.records == nil {
		s.records = map[string][]core.CacheRecord{}
	}
	for _, record := range records {
		account := record.Header().HomeAccountID
		s.records[account] = append(s.records[account], record)
	}
	return nil
}

func (s *countingRecordStore) DeleteAccount(_ context.Context, homeAccountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := int64(len(s.records[homeAccountID]))
	delete(s.records, homeAccountID)
	return deleted, nil
}

func (s *countingRecordStore) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
