package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-broker/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CacheRecordStore keeps token cache records in SQL. Records are returned in
// the order they were first saved.
type CacheRecordStore struct {
	db   *bun.DB
	repo repository.Repository[*cacheRecordRow]
	now  func() time.Time
}

func NewCacheRecordStore(db *bun.DB) (*CacheRecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*cacheRecordRow](db, cacheRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid cache record repository wiring: %w", err)
		}
	}
	return &CacheRecordStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// ListRecordsForAccount returns the records of one account, or of every
// account when homeAccountID is empty.
func (s *CacheRecordStore) ListRecordsForAccount(ctx context.Context, homeAccountID string) ([]core.CacheRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: cache record store is not configured")
	}
	homeAccountID = strings.TrimSpace(homeAccountID)

	rows := []*cacheRecordRow{}
	query := s.db.NewSelect().Model(&rows)
	if homeAccountID != "" {
		query = query.Where("?TableAlias.home_account_id = ?", homeAccountID)
	}
	if err := query.OrderExpr("?TableAlias.position ASC").Scan(ctx); err != nil {
		return nil, err
	}

	records := make([]core.CacheRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// SaveRecords upserts records by (kind, account, environment, realm, client,
// target). An updated record keeps its original position.
func (s *CacheRecordStore) SaveRecords(ctx context.Context, records ...core.CacheRecord) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: cache record store is not configured")
	}
	if len(records) == 0 {
		return nil
	}
	rows := make([]*cacheRecordRow, 0, len(records))
	for index, record := range records {
		row, err := newCacheRecordRow(record)
		if err != nil {
			return fmt.Errorf("sqlstore: record %d: %w", index, err)
		}
		rows = append(rows, row)
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		position, err := s.lastPosition(ctx, tx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			existing, findErr := findCacheRecordTx(ctx, tx, row)
			if findErr != nil {
				return findErr
			}
			if existing != nil {
				if _, updateErr := tx.NewUpdate().
					Model((*cacheRecordRow)(nil)).
					Set("payload = ?", row.Payload).
					Set("updated_at = ?", now).
					Where("id = ?", existing.ID).
					Exec(ctx); updateErr != nil {
					return updateErr
				}
				continue
			}

			position++
			row.ID = uuid.NewString()
			row.Position = position
			row.CreatedAt = now
			row.UpdatedAt = now
			if _, createErr := s.repo.CreateTx(ctx, tx, row); createErr != nil {
				return createErr
			}
		}
		return nil
	})
}

// DeleteAccount removes every record of an account and reports how many rows
// were deleted.
func (s *CacheRecordStore) DeleteAccount(ctx context.Context, homeAccountID string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: cache record store is not configured")
	}
	homeAccountID = strings.TrimSpace(homeAccountID)
	if homeAccountID == "" {
		return 0, fmt.Errorf("sqlstore: home account id is required")
	}
	res, err := s.db.NewDelete().
		Model((*cacheRecordRow)(nil)).
		Where("home_account_id = ?", homeAccountID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (s *CacheRecordStore) lastPosition(ctx context.Context, tx bun.Tx) (int64, error) {
	var position int64
	if err := tx.NewSelect().
		Model((*cacheRecordRow)(nil)).
		ColumnExpr("COALESCE(MAX(position), 0)").
		Scan(ctx, &position); err != nil {
		return 0, err
	}
	return position, nil
}

func findCacheRecordTx(ctx context.Context, tx bun.Tx, key *cacheRecordRow) (*cacheRecordRow, error) {
	row := &cacheRecordRow{}
	err := tx.NewSelect().
		Model(row).
		Where("?TableAlias.record_kind = ?", key.RecordKind).
		Where("?TableAlias.home_account_id = ?", key.HomeAccountID).
		Where("?TableAlias.environment = ?", key.Environment).
		Where("?TableAlias.realm = ?", key.Realm).
		Where("?TableAlias.client_id = ?", key.ClientID).
		Where("?TableAlias.target = ?", key.Target).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func newCacheRecordRow(record core.CacheRecord) (*cacheRecordRow, error) {
	payload, err := core.MarshalCacheRecord(record)
	if err != nil {
		return nil, err
	}
	header := record.Header()
	row := &cacheRecordRow{
		RecordKind:    string(record.Kind()),
		HomeAccountID: strings.TrimSpace(header.HomeAccountID),
		Environment:   strings.TrimSpace(header.Environment),
		Realm:         strings.TrimSpace(header.Realm),
		Payload:       payload,
	}
	switch typed := record.(type) {
	case core.AccessTokenRecord:
		row.ClientID, row.Target = typed.ClientID, typed.Target
	case *core.AccessTokenRecord:
		row.ClientID, row.Target = typed.ClientID, typed.Target
	case core.RefreshTokenRecord:
		row.ClientID, row.Target = typed.ClientID, typed.Target
	case *core.RefreshTokenRecord:
		row.ClientID, row.Target = typed.ClientID, typed.Target
	case core.IDTokenRecord:
		row.ClientID = typed.ClientID
	case *core.IDTokenRecord:
		row.ClientID = typed.ClientID
	}
	if row.HomeAccountID == "" {
		return nil, fmt.Errorf("home account id is required")
	}
	return row, nil
}

func (r *cacheRecordRow) toDomain() (core.CacheRecord, error) {
	if r == nil {
		return nil, fmt.Errorf("sqlstore: cache record row is nil")
	}
	record, err := core.UnmarshalCacheRecord(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: decode cache record %s: %w", r.ID, err)
	}
	return record, nil
}
