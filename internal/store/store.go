package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andresmejia3/moodscan/internal/emotion"
)

// ErrNotFound is returned when an analysis ID does not exist.
var ErrNotFound = errors.New("analysis not found")

// Store manages the PostgreSQL connection for saved analyses.
type Store struct {
	conn *pgx.Conn
}

// Summary is one row of ListAnalyses.
type Summary struct {
	ID        uuid.UUID
	VideoPath string
	Dominant  emotion.Label
	Warnings  int
	CreatedAt time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS emotion_analyses (
			id TEXT PRIMARY KEY,
			video_id TEXT REFERENCES video_metadata(id) ON DELETE SET NULL,
			video_path TEXT NOT NULL,
			max_duration DOUBLE PRECISION NOT NULL,
			facial JSONB NOT NULL,
			audio JSONB NOT NULL,
			text JSONB NOT NULL,
			combined JSONB NOT NULL,
			dominant TEXT NOT NULL DEFAULT '',
			transcript TEXT NOT NULL DEFAULT '',
			warnings TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS emotion_analyses_video_id_idx ON emotion_analyses (video_id);
		CREATE INDEX IF NOT EXISTS emotion_analyses_created_at_idx ON emotion_analyses (created_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// execer is satisfied by both *pgx.Conn and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// EnsureVideoMetadata registers the video in the database. If it exists, it updates the timestamp.
func (s *Store) EnsureVideoMetadata(ctx context.Context, videoID, path string) error {
	return ensureVideo(ctx, s.conn, videoID, path)
}

func ensureVideo(ctx context.Context, q execer, videoID, path string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO video_metadata (id, path, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path
	`, videoID, path)
	return err
}

func marshalDist(d emotion.Distribution) ([]byte, error) {
	if d == nil {
		d = emotion.Distribution{}
	}
	return json.Marshal(d)
}

// SaveAnalysis stores r and, when it carries a video ID, its video row.
// Saving the same ID twice overwrites the earlier row.
func (s *Store) SaveAnalysis(ctx context.Context, r *emotion.Result) error {
	dists := make([][]byte, 0, 4)
	for _, d := range []emotion.Distribution{r.Facial, r.Audio, r.Text, r.Combined} {
		b, err := marshalDist(d)
		if err != nil {
			return err
		}
		dists = append(dists, b)
	}
	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var videoID *string
	if r.VideoID != "" {
		if err := ensureVideo(ctx, tx, r.VideoID, r.VideoPath); err != nil {
			return err
		}
		videoID = &r.VideoID
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO emotion_analyses
			(id, video_id, video_path, max_duration, facial, audio, text, combined, dominant, transcript, warnings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			facial = EXCLUDED.facial, audio = EXCLUDED.audio, text = EXCLUDED.text,
			combined = EXCLUDED.combined, dominant = EXCLUDED.dominant,
			transcript = EXCLUDED.transcript, warnings = EXCLUDED.warnings
	`, r.ID.String(), videoID, r.VideoPath, r.MaxDuration,
		string(dists[0]), string(dists[1]), string(dists[2]), string(dists[3]),
		string(r.Dominant), r.Transcript, warnings, r.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetAnalysis loads one saved analysis.
func (s *Store) GetAnalysis(ctx context.Context, id uuid.UUID) (*emotion.Result, error) {
	var (
		r        = &emotion.Result{ID: id}
		videoID  *string
		raw      [4]string
		dominant string
	)
	err := s.conn.QueryRow(ctx, `
		SELECT video_id, video_path, max_duration, facial::text, audio::text, text::text, combined::text,
			dominant, transcript, warnings, created_at
		FROM emotion_analyses WHERE id = $1
	`, id.String()).Scan(&videoID, &r.VideoPath, &r.MaxDuration, &raw[0], &raw[1], &raw[2], &raw[3],
		&dominant, &r.Transcript, &r.Warnings, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if videoID != nil {
		r.VideoID = *videoID
	}
	r.Dominant = emotion.Label(dominant)
	targets := []*emotion.Distribution{&r.Facial, &r.Audio, &r.Text, &r.Combined}
	for i, t := range targets {
		if err := json.Unmarshal([]byte(raw[i]), t); err != nil {
			return nil, fmt.Errorf("decode stored distribution: %w", err)
		}
	}
	if len(r.Warnings) == 0 {
		r.Warnings = nil
	}
	return r, nil
}

// ListAnalyses returns the most recent analyses first. limit <= 0 returns all.
func (s *Store) ListAnalyses(ctx context.Context, limit int) ([]Summary, error) {
	query := `SELECT id, video_path, dominant, cardinality(warnings), created_at
		FROM emotion_analyses ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum      Summary
			id       string
			dominant string
		)
		if err := rows.Scan(&id, &sum.VideoPath, &dominant, &sum.Warnings, &sum.CreatedAt); err != nil {
			return nil, err
		}
		if sum.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("stored analysis id %q: %w", id, err)
		}
		sum.Dominant = emotion.Label(dominant)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteAnalysis removes one analysis. Returns ErrNotFound if it did not exist.
func (s *Store) DeleteAnalysis(ctx context.Context, id uuid.UUID) error {
	tag, err := s.conn.Exec(ctx, "DELETE FROM emotion_analyses WHERE id = $1", id.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS emotion_analyses CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}
