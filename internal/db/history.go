package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// History stores fired shots, the best score seen per level and connection
// lifecycle entries.
type History struct {
	db *Database
}

// ShotRecord is one row of the shots table.
type ShotRecord struct {
	ID        int64     `json:"id"`
	Level     int       `json:"level"`
	Kind      string    `json:"kind"`
	Mode      string    `json:"mode"`
	Params    []int     `json:"params"`
	Accepted  bool      `json:"accepted"`
	PreScore  int       `json:"pre_score"`
	PostScore int       `json:"post_score"`
	Reward    int       `json:"reward"`
	Attempts  int       `json:"attempts"`
	FiredAt   time.Time `json:"fired_at"`
}

// LevelScore is one row of the level_scores table.
type LevelScore struct {
	Level     int       `json:"level"`
	BestScore int       `json:"best_score"`
	Shots     int       `json:"shots"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LifecycleEntry is one row of the lifecycle table.
type LifecycleEntry struct {
	Event  string    `json:"event"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// OpenHistory opens the database at dbPath and applies the schema.
func OpenHistory(dbPath string) (*History, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	h := &History{db: database}
	if err := h.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return h, nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS shots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			level INTEGER NOT NULL,
			kind TEXT NOT NULL,
			mode TEXT NOT NULL,
			params TEXT NOT NULL DEFAULT '[]',
			accepted INTEGER NOT NULL,
			pre_score INTEGER NOT NULL DEFAULT 0,
			post_score INTEGER NOT NULL DEFAULT 0,
			reward INTEGER NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 1,
			fired_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_shots_level ON shots(level);

		CREATE TABLE IF NOT EXISTS level_scores (
			level INTEGER PRIMARY KEY,
			best_score INTEGER NOT NULL DEFAULT 0,
			shots INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS lifecycle (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL
		);
	`
	_, err := h.db.Exec(schema)
	return err
}

// RecordShot stores a shot and bumps the shot count of its level.
func (h *History) RecordShot(rec ShotRecord) (int64, error) {
	if rec.FiredAt.IsZero() {
		rec.FiredAt = time.Now()
	}
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return 0, fmt.Errorf("failed to encode shot params: %w", err)
	}

	var id int64
	err = h.db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO shots (level, kind, mode, params, accepted, pre_score, post_score, reward, attempts, fired_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Level, rec.Kind, rec.Mode, string(params), boolInt(rec.Accepted),
			rec.PreScore, rec.PostScore, rec.Reward, rec.Attempts, rec.FiredAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert shot: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}

		_, err = tx.Exec(`
			INSERT INTO level_scores (level, best_score, shots, updated_at) VALUES (?, 0, 1, ?)
			ON CONFLICT(level) DO UPDATE SET shots = shots + 1, updated_at = excluded.updated_at`,
			rec.Level, rec.FiredAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to count shot: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Debug().Int64("id", id).Int("level", rec.Level).Int("reward", rec.Reward).Msg("shot recorded")
	return id, nil
}

// RecordScore keeps the maximum score observed for a level.
func (h *History) RecordScore(level, score int) error {
	_, err := h.db.Exec(`
		INSERT INTO level_scores (level, best_score, shots, updated_at) VALUES (?, ?, 0, ?)
		ON CONFLICT(level) DO UPDATE SET
			best_score = MAX(best_score, excluded.best_score),
			updated_at = excluded.updated_at`,
		level, score, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record score for level %d: %w", level, err)
	}
	return nil
}

// RecordLifecycle appends a connection or supervisor entry.
func (h *History) RecordLifecycle(event, detail string) error {
	_, err := h.db.Exec(`INSERT INTO lifecycle (event, detail, at) VALUES (?, ?, ?)`,
		event, detail, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", event, err)
	}
	return nil
}

// RecentShots returns up to limit shots, newest first. A level of zero
// matches every level.
func (h *History) RecentShots(level, limit int) ([]ShotRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(`
		SELECT id, level, kind, mode, params, accepted, pre_score, post_score, reward, attempts, fired_at
		FROM shots
		WHERE ? = 0 OR level = ?
		ORDER BY id DESC
		LIMIT ?`, level, level, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query shots: %w", err)
	}
	defer rows.Close()

	var out []ShotRecord
	for rows.Next() {
		var (
			rec      ShotRecord
			params   string
			accepted int
			firedAt  int64
		)
		if err := rows.Scan(&rec.ID, &rec.Level, &rec.Kind, &rec.Mode, &params, &accepted,
			&rec.PreScore, &rec.PostScore, &rec.Reward, &rec.Attempts, &firedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shot: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("shot %d has bad params: %w", rec.ID, err)
		}
		rec.Accepted = accepted == 1
		rec.FiredAt = time.UnixMilli(firedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LevelScores returns every level with a recorded score, ordered by level.
func (h *History) LevelScores() ([]LevelScore, error) {
	rows, err := h.db.Query(`SELECT level, best_score, shots, updated_at FROM level_scores ORDER BY level`)
	if err != nil {
		return nil, fmt.Errorf("failed to query level scores: %w", err)
	}
	defer rows.Close()

	var out []LevelScore
	for rows.Next() {
		var (
			ls      LevelScore
			updated int64
		)
		if err := rows.Scan(&ls.Level, &ls.BestScore, &ls.Shots, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan level score: %w", err)
		}
		ls.UpdatedAt = time.UnixMilli(updated)
		out = append(out, ls)
	}
	return out, rows.Err()
}

// Lifecycle returns up to limit lifecycle entries, newest first.
func (h *History) Lifecycle(limit int) ([]LifecycleEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(`SELECT event, detail, at FROM lifecycle ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query lifecycle: %w", err)
	}
	defer rows.Close()

	var out []LifecycleEntry
	for rows.Next() {
		var (
			e  LifecycleEntry
			at int64
		)
		if err := rows.Scan(&e.Event, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("failed to scan lifecycle entry: %w", err)
		}
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// TotalBest sums the best score of every level.
func (h *History) TotalBest() (int, error) {
	var total int
	if err := h.db.QueryRow(`SELECT COALESCE(SUM(best_score), 0) FROM level_scores`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum scores: %w", err)
	}
	return total, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
