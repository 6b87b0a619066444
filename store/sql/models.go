package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// cacheRecordRow stores one token cache record. Payload holds the record as
// encoded by core.MarshalCacheRecord; the key columns are copies used for
// lookups and the uniqueness constraint.
type cacheRecordRow struct {
	bun.BaseModel `bun:"table:broker_cache_records,alias:bcr"`

	ID            string    `bun:"id,pk"`
	RecordKind    string    `bun:"record_kind,notnull"`
	HomeAccountID string    `bun:"home_account_id,notnull"`
	Environment   string    `bun:"environment,notnull"`
	Realm         string    `bun:"realm,notnull"`
	ClientID      string    `bun:"client_id,notnull"`
	Target        string    `bun:"target,notnull"`
	Position      int64     `bun:"position,notnull"`
	Payload       []byte    `bun:"payload,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
