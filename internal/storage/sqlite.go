package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func (r *SQLiteRepository) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS playbacks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		repeat INTEGER NOT NULL,
		activations INTEGER NOT NULL,
		loops INTEGER NOT NULL,
		played_ms INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		segments_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_playbacks_user_id ON playbacks(user_id);
	CREATE INDEX IF NOT EXISTS idx_playbacks_ended_at ON playbacks(ended_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) SavePlayback(record *PlaybackRecord) error {
	segmentsJSON, err := json.Marshal(record.Segments)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO playbacks (id, user_id, outcome, repeat, activations, loops, played_ms, started_at, ended_at, segments_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(
		query,
		record.ID,
		record.UserID,
		record.Outcome,
		record.Repeat,
		record.Activations,
		record.Loops,
		record.PlayedMS,
		record.StartedAt.UTC(),
		record.EndedAt.UTC(),
		string(segmentsJSON),
	)

	return err
}

func (r *SQLiteRepository) GetPlaybacksByUser(userID string) ([]PlaybackRecord, error) {
	query := `
		SELECT id, user_id, outcome, repeat, activations, loops, played_ms, started_at, ended_at, segments_json
		FROM playbacks
		WHERE user_id = ?
		ORDER BY ended_at DESC
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanPlaybacks(rows)
}

func (r *SQLiteRepository) GetRecentPlaybacks(userID string, since time.Time) ([]PlaybackRecord, error) {
	query := `
		SELECT id, user_id, outcome, repeat, activations, loops, played_ms, started_at, ended_at, segments_json
		FROM playbacks
		WHERE user_id = ? AND ended_at >= ?
		ORDER BY ended_at DESC
	`

	rows, err := r.db.Query(query, userID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanPlaybacks(rows)
}

func (r *SQLiteRepository) GetPlaybackStats(userID string) (*PlaybackStats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN outcome = 'completed' THEN 1 ELSE 0 END), 0) as completed,
			COALESCE(SUM(CASE WHEN outcome IN ('cancelled', 'preempted') THEN 1 ELSE 0 END), 0) as cancelled,
			COALESCE(SUM(played_ms), 0) as played_ms
		FROM playbacks
		WHERE user_id = ?
	`

	var stats PlaybackStats
	var playedMS int64

	err := r.db.QueryRow(query, userID).Scan(
		&stats.TotalPlaybacks,
		&stats.CompletedCount,
		&stats.CancelledCount,
		&playedMS,
	)
	if err != nil {
		return nil, err
	}

	stats.TotalPlayedSec = float64(playedMS) / 1000
	if stats.TotalPlaybacks > 0 {
		stats.CompletionRate = float64(stats.CompletedCount) / float64(stats.TotalPlaybacks) * 100
	}

	return &stats, nil
}

func (r *SQLiteRepository) scanPlaybacks(rows *sql.Rows) ([]PlaybackRecord, error) {
	records := []PlaybackRecord{}

	for rows.Next() {
		var record PlaybackRecord
		var segmentsJSON string

		err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.Outcome,
			&record.Repeat,
			&record.Activations,
			&record.Loops,
			&record.PlayedMS,
			&record.StartedAt,
			&record.EndedAt,
			&segmentsJSON,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(segmentsJSON), &record.Segments); err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
