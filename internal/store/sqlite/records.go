package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/resumax/internal/store"
)

// Store implements store.Store on a single records table.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, userID string, typ store.RecordType) (*store.Record, error) {
	query := `SELECT data, updated_at FROM records WHERE user_id = ? AND record_type = ?`

	var data, updatedAt string
	err := s.db.QueryRowContext(ctx, query, userID, string(typ)).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}

	return newRecord(userID, typ, data, updatedAt)
}

// Put replaces the record for (user id, record type) as a whole.
func (s *Store) Put(ctx context.Context, rec *store.Record) error {
	if rec == nil || rec.UserID == "" || rec.Type == "" {
		return errors.New("record user id and type are required")
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `INSERT INTO records (user_id, record_type, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, record_type) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query, rec.UserID, string(rec.Type), string(rec.Data), updatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, userID string) ([]*store.Record, error) {
	query := `SELECT record_type, data, updated_at FROM records WHERE user_id = ? ORDER BY record_type`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []*store.Record
	for rows.Next() {
		var typ, data, updatedAt string
		if err := rows.Scan(&typ, &data, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := newRecord(userID, store.RecordType(typ), data, updatedAt)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func newRecord(userID string, typ store.RecordType, data, updatedAt string) (*store.Record, error) {
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at of %s/%s: %w", userID, typ, err)
	}
	return &store.Record{UserID: userID, Type: typ, Data: []byte(data), UpdatedAt: ts}, nil
}
