package sqlstore

import "github.com/goliatone/go-broker/core"

var (
	_ core.CacheStore   = (*CacheRecordStore)(nil)
	_ core.CacheStore   = (*CachedCacheRecordStore)(nil)
	_ CacheRecordWriter = (*CacheRecordStore)(nil)
	_ CacheRecordWriter = (*CachedCacheRecordStore)(nil)
)
