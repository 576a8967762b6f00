// Package sqlite persists journal channels in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"clearline/go-engine/internal/journal"
	"clearline/go-engine/pkg/protocol"
)

type Store struct {
	sqlDB *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	channel     TEXT    NOT NULL,
	seq         INTEGER NOT NULL,
	at_millis   INTEGER NOT NULL,
	signed_json TEXT    NOT NULL,
	PRIMARY KEY (channel, seq)
);`

// Open opens the journal database, creating the schema when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Append(ctx context.Context, channel string, signed protocol.SignedAction, at time.Time) (journal.Entry, error) {
	if err := ctx.Err(); err != nil {
		return journal.Entry{}, err
	}
	raw, err := json.Marshal(signed)
	if err != nil {
		return journal.Entry{}, fmt.Errorf("encode signed action: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return journal.Entry{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq uint64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM journal_entries WHERE channel = ?`, channel)
	if err := row.Scan(&seq); err != nil {
		return journal.Entry{}, fmt.Errorf("next seq: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO journal_entries (channel, seq, at_millis, signed_json) VALUES (?, ?, ?, ?)`,
		channel, seq, toMillis(at), string(raw))
	if err != nil {
		if isUniqueViolation(err) {
			return journal.Entry{}, fmt.Errorf("concurrent append on channel %s: %w", channel, err)
		}
		return journal.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return journal.Entry{}, fmt.Errorf("commit append: %w", err)
	}

	return journal.Entry{Channel: channel, Seq: seq, At: fromMillis(toMillis(at)), Signed: signed.Clone()}, nil
}

func (s *Store) List(ctx context.Context, channel string) ([]journal.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT seq, at_millis, signed_json FROM journal_entries WHERE channel = ? ORDER BY seq ASC`, channel)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []journal.Entry
	for rows.Next() {
		var (
			seq      uint64
			atMillis int64
			rawJSON  string
		)
		if err := rows.Scan(&seq, &atMillis, &rawJSON); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		signed, err := protocol.DecodeSignedActionBytes([]byte(rawJSON))
		if err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", seq, err)
		}
		out = append(out, journal.Entry{
			Channel: channel,
			Seq:     seq,
			At:      fromMillis(atMillis),
			Signed:  signed,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	if len(out) == 0 {
		return nil, journal.ErrChannelNotFound
	}
	return out, nil
}

func (s *Store) Channels(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT DISTINCT channel FROM journal_entries ORDER BY channel ASC`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var channel string
		if err := rows.Scan(&channel); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return out, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ journal.Store = (*Store)(nil)
