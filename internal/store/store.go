// Package store keeps a journal of calibrations and the calibration points
// of every camera in a sqlite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"projection-mapper/internal/calib"
)

const schema = `
CREATE TABLE IF NOT EXISTS calibrations (
	id           TEXT PRIMARY KEY,
	camera       TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	params       TEXT NOT NULL,
	residual     REAL NOT NULL,
	accepted     INTEGER NOT NULL,
	points       INTEGER NOT NULL,
	runs         INTEGER NOT NULL,
	discarded    INTEGER NOT NULL,
	iterations   INTEGER NOT NULL,
	mean_error   REAL NOT NULL,
	stddev_error REAL NOT NULL,
	duration_ns  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calibrations_camera ON calibrations(camera, created_at);
CREATE TABLE IF NOT EXISTS calibration_points (
	camera TEXT NOT NULL,
	idx    INTEGER NOT NULL,
	x      REAL NOT NULL,
	y      REAL NOT NULL,
	z      REAL NOT NULL,
	sx     REAL NOT NULL,
	sy     REAL NOT NULL,
	is_set INTEGER NOT NULL,
	PRIMARY KEY (camera, idx)
);
`

// Record is one journal entry.
type Record struct {
	ID          string
	Camera      string
	Created     time.Time
	Params      calib.Params
	Residual    float64
	Accepted    bool
	Points      int
	Runs        int
	Discarded   int
	Iterations  int
	MeanError   float64
	StdDevError float64
	Duration    time.Duration
}

// RecordOf converts a solver result.
func RecordOf(camera string, res calib.Result) Record {
	return Record{
		ID:          res.ID.String(),
		Camera:      camera,
		Created:     time.Now(),
		Params:      res.Params,
		Residual:    res.Residual,
		Accepted:    res.Accepted,
		Points:      res.Points,
		Runs:        res.Runs,
		Discarded:   res.Discarded,
		Iterations:  res.Iterations,
		MeanError:   res.MeanError,
		StdDevError: res.StdDevError,
		Duration:    res.Duration,
	}
}

// Store is safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens or creates the database at path. ":memory:" keeps it in
// memory.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: sqlite serializes writers anyway and every
	// connection to :memory: would see its own database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	log.Debug("calibration store opened", "path", path)
	return &Store{db: db, log: log.With("component", "store")}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveCalibration(ctx context.Context, db execer, r Record) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO calibrations (id, camera, created_at, params, residual, accepted,
			points, runs, discarded, iterations, mean_error, stddev_error, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Camera, r.Created.UnixNano(), string(params), r.Residual, r.Accepted,
		r.Points, r.Runs, r.Discarded, r.Iterations, r.MeanError, r.StdDevError, int64(r.Duration))
	if err != nil {
		return fmt.Errorf("store: save calibration %s: %w", r.ID, err)
	}
	return nil
}

func savePoints(ctx context.Context, db execer, camera string, points [][6]float64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM calibration_points WHERE camera = ?`, camera); err != nil {
		return fmt.Errorf("store: clear points of %s: %w", camera, err)
	}
	for i, p := range points {
		_, err := db.ExecContext(ctx, `
			INSERT INTO calibration_points (camera, idx, x, y, z, sx, sy, is_set)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			camera, i, p[0], p[1], p[2], p[3], p[4], p[5] != 0)
		if err != nil {
			return fmt.Errorf("store: save point %d of %s: %w", i, camera, err)
		}
	}
	return nil
}

// SaveCalibration appends a record to the journal.
func (s *Store) SaveCalibration(ctx context.Context, r Record) error {
	return saveCalibration(ctx, s.db, r)
}

// SavePoints replaces the calibration points of a camera.
func (s *Store) SavePoints(ctx context.Context, camera string, points [][6]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	if err := savePoints(ctx, tx, camera, points); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// RecordCalibration journals an accepted calibration together with the
// points it was computed from.
func (s *Store) RecordCalibration(ctx context.Context, camera string, res calib.Result, points [][6]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	if err := saveCalibration(ctx, tx, RecordOf(camera, res)); err != nil {
		tx.Rollback()
		return err
	}
	if err := savePoints(ctx, tx, camera, points); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	s.log.Debug("calibration recorded", "camera", camera, "id", res.ID, "residual", res.Residual)
	return nil
}

// History returns the last records of a camera, newest first. A limit <= 0
// returns all of them.
func (s *Store) History(ctx context.Context, camera string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, camera, created_at, params, residual, accepted, points, runs,
			discarded, iterations, mean_error, stddev_error, duration_ns
		FROM calibrations WHERE camera = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, camera, limit)
	if err != nil {
		return nil, fmt.Errorf("store: history of %s: %w", camera, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r       Record
			created int64
			params  string
			dur     int64
		)
		err := rows.Scan(&r.ID, &r.Camera, &created, &params, &r.Residual, &r.Accepted,
			&r.Points, &r.Runs, &r.Discarded, &r.Iterations, &r.MeanError, &r.StdDevError, &dur)
		if err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("store: params of %s: %w", r.ID, err)
		}
		r.Created = time.Unix(0, created)
		r.Duration = time.Duration(dur)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadPoints returns the saved calibration points of a camera, in order.
func (s *Store) LoadPoints(ctx context.Context, camera string) ([][6]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT x, y, z, sx, sy, is_set FROM calibration_points
		WHERE camera = ? ORDER BY idx`, camera)
	if err != nil {
		return nil, fmt.Errorf("store: points of %s: %w", camera, err)
	}
	defer rows.Close()

	var out [][6]float64
	for rows.Next() {
		var (
			p     [6]float64
			isSet bool
		)
		if err := rows.Scan(&p[0], &p[1], &p[2], &p[3], &p[4], &isSet); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		if isSet {
			p[5] = 1
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
