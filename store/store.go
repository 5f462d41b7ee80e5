// Package store persists the single current Scrape Record in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/use-agent/marsdata/models"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// RecordKey is the well-known key of the one stored record.
const RecordKey = "mars"

// ErrNotFound is returned by Latest when no run has been stored yet.
var ErrNotFound = errors.New("no record stored")

type Store struct {
	db *sql.DB
}

// Open connects to dsn and applies the schema. A ":memory:" dsn gives each
// connection its own database, so the pool is capped at one connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const upsertQuery = `
INSERT INTO scrape_record (key, run_id, news_title, news_paragraph, featured_image, facts, hemispheres, fingerprint, last_modified)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    run_id         = excluded.run_id,
    news_title     = excluded.news_title,
    news_paragraph = excluded.news_paragraph,
    featured_image = excluded.featured_image,
    facts          = excluded.facts,
    hemispheres    = excluded.hemispheres,
    fingerprint    = excluded.fingerprint,
    last_modified  = excluded.last_modified`

// Upsert replaces the stored record with rec. changed reports whether the
// content fingerprint differs from the record it replaced (true when there
// was none).
func (s *Store) Upsert(ctx context.Context, rec *models.ScrapeRecord) (changed bool, err error) {
	var facts sql.NullString
	if rec.Facts != nil {
		b, err := json.Marshal(rec.Facts)
		if err != nil {
			return false, fmt.Errorf("store: encode facts: %w", err)
		}
		facts = sql.NullString{String: string(b), Valid: true}
	}
	hemispheres := rec.Hemispheres
	if hemispheres == nil {
		hemispheres = []models.Hemisphere{}
	}
	hemiJSON, err := json.Marshal(hemispheres)
	if err != nil {
		return false, fmt.Errorf("store: encode hemispheres: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var prior string
	err = tx.QueryRowContext(ctx, `SELECT fingerprint FROM scrape_record WHERE key = ?`, RecordKey).Scan(&prior)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		changed = true
	case err != nil:
		return false, fmt.Errorf("store: read prior fingerprint: %w", err)
	default:
		changed = prior != strconv.FormatUint(rec.Fingerprint, 10)
	}

	_, err = tx.ExecContext(ctx, upsertQuery,
		RecordKey,
		rec.RunID,
		nullable(rec.NewsTitle),
		nullable(rec.NewsParagraph),
		nullable(rec.FeaturedImage),
		facts,
		string(hemiJSON),
		strconv.FormatUint(rec.Fingerprint, 10),
		rec.LastModified.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("store: upsert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: commit: %w", err)
	}
	return changed, nil
}

// Latest returns the stored record or ErrNotFound.
func (s *Store) Latest(ctx context.Context) (*models.ScrapeRecord, error) {
	var (
		rec                     models.ScrapeRecord
		title, para, image      sql.NullString
		facts                   sql.NullString
		hemispheres             string
		fingerprint, modifiedAt string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT run_id, news_title, news_paragraph, featured_image, facts, hemispheres, fingerprint, last_modified
FROM scrape_record WHERE key = ?`, RecordKey).
		Scan(&rec.RunID, &title, &para, &image, &facts, &hemispheres, &fingerprint, &modifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read record: %w", err)
	}

	rec.NewsTitle = fromNullable(title)
	rec.NewsParagraph = fromNullable(para)
	rec.FeaturedImage = fromNullable(image)
	if facts.Valid {
		rec.Facts = &models.FactsTable{}
		if err := json.Unmarshal([]byte(facts.String), rec.Facts); err != nil {
			return nil, fmt.Errorf("store: decode facts: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(hemispheres), &rec.Hemispheres); err != nil {
		return nil, fmt.Errorf("store: decode hemispheres: %w", err)
	}
	if rec.Fingerprint, err = strconv.ParseUint(fingerprint, 10, 64); err != nil {
		return nil, fmt.Errorf("store: decode fingerprint: %w", err)
	}
	if rec.LastModified, err = time.Parse(time.RFC3339Nano, modifiedAt); err != nil {
		return nil, fmt.Errorf("store: decode last_modified: %w", err)
	}
	return &rec, nil
}

// Count returns the number of stored rows. It is never more than one.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scrape_record`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
