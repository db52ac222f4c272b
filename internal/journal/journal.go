// Package journal records rule matches in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id         TEXT PRIMARY KEY,
	rule       TEXT NOT NULL,
	channel    TEXT NOT NULL,
	chat_id    TEXT NOT NULL,
	message_id TEXT NOT NULL DEFAULT '',
	sender     TEXT NOT NULL DEFAULT '',
	preview    TEXT NOT NULL DEFAULT '',
	matched_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_matches_matched_at ON matches(matched_at);
`

// Entry is one recorded match.
type Entry struct {
	ID        string
	Rule      string
	Channel   string
	ChatID    string
	MessageID string
	Sender    string
	Preview   string
	MatchedAt time.Time
}

// Journal is a SQLite-backed match log.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path. ":memory:" is accepted.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// SQLite works best with a single connection; it also keeps :memory: on one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores one match.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.MatchedAt.IsZero() {
		e.MatchedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO matches (id, rule, channel, chat_id, message_id, sender, preview, matched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Rule, e.Channel, e.ChatID, e.MessageID, e.Sender, e.Preview, e.MatchedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, rule, channel, chat_id, message_id, sender, preview, matched_at
		FROM matches
		ORDER BY matched_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Rule, &e.Channel, &e.ChatID, &e.MessageID, &e.Sender, &e.Preview, &e.MatchedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of matches recorded for rule, or for all rules when rule is empty.
func (j *Journal) Count(ctx context.Context, rule string) (int, error) {
	var n int
	var err error
	if rule == "" {
		err = j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&n)
	} else {
		err = j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches WHERE rule = ?`, rule).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	return n, nil
}
