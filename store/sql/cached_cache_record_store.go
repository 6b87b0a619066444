package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-broker/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const (
	cacheRecordCacheKeyPrefix = "go-broker::cache_records::v1"
	allAccountsSegment        = "_all"
)

// CacheRecordWriter is the write side used by the cached store.
type CacheRecordWriter interface {
	core.CacheStore
	SaveRecords(ctx context.Context, records ...core.CacheRecord) error
	DeleteAccount(ctx context.Context, homeAccountID string) (int64, error)
}

// CachedCacheRecordStore serves account record lists from a read cache and
// drops the affected entries on every write.
type CachedCacheRecordStore struct {
	base  CacheRecordWriter
	cache repositorycache.CacheService
}

func NewCachedCacheRecordStore(
	base CacheRecordWriter,
	cacheService repositorycache.CacheService,
) (*CachedCacheRecordStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base cache record store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: cache record cache service is required")
	}
	return &CachedCacheRecordStore{base: base, cache: cacheService}, nil
}

// CacheRecordCacheKey returns go-broker::cache_records::v1::<home_account_id>
// with the account segment URL-path escaped. The empty account maps to _all.
func CacheRecordCacheKey(homeAccountID string) string {
	segment := strings.TrimSpace(homeAccountID)
	if segment == "" {
		segment = allAccountsSegment
	} else {
		segment = url.PathEscape(segment)
	}
	return cacheRecordCacheKeyPrefix + "::" + segment
}

func (s *CachedCacheRecordStore) ListRecordsForAccount(ctx context.Context, homeAccountID string) ([]core.CacheRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached cache record store is not configured")
	}
	homeAccountID = strings.TrimSpace(homeAccountID)
	records, err := repositorycache.GetOrFetch(ctx, s.cache, CacheRecordCacheKey(homeAccountID), func(ctx context.Context) ([]core.CacheRecord, error) {
		return s.base.ListRecordsForAccount(ctx, homeAccountID)
	})
	if err != nil {
		return nil, err
	}
	return append([]core.CacheRecord(nil), records...), nil
}

func (s *CachedCacheRecordStore) SaveRecords(ctx context.Context, records ...core.CacheRecord) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached cache record store is not configured")
	}
	if err := s.base.SaveRecords(ctx, records...); err != nil {
		return err
	}
	accounts := make([]string, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		accounts = append(accounts, record.Header().HomeAccountID)
	}
	return s.invalidate(ctx, accounts...)
}

func (s *CachedCacheRecordStore) DeleteAccount(ctx context.Context, homeAccountID string) (int64, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return 0, fmt.Errorf("sqlstore: cached cache record store is not configured")
	}
	deleted, err := s.base.DeleteAccount(ctx, homeAccountID)
	if err != nil {
		return 0, err
	}
	if err := s.invalidate(ctx, homeAccountID); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// invalidate drops the listed accounts and the all-accounts entry.
func (s *CachedCacheRecordStore) invalidate(ctx context.Context, accounts ...string) error {
	seen := map[string]struct{}{CacheRecordCacheKey(""): {}}
	keys := []string{CacheRecordCacheKey("")}
	for _, account := range accounts {
		key := CacheRecordCacheKey(account)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
