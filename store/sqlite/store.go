// Package sqlite persists sliced inference runs and their detections so a
// night of trap images can be reviewed and counted later.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	sahi "github.com/culitrap/go-sahi"
	_ "github.com/mattn/go-sqlite3"
)

// Run is a stored sliced inference run over one image
type Run struct {
	ID              int64
	Image           string
	Width           int
	Height          int
	TileWidth       int
	TileHeight      int
	OverlapRatio    float64
	ConfidenceFloor float64
	IoUThreshold    float64
	TileCount       int
	RawCount        int
	MergedCount     int
	DegenerateCount int
	FailedTiles     int
	TimedOutTiles   int
	SkippedTiles    int
	Cancelled       bool
	Elapsed         time.Duration
	CreatedAt       time.Time
	Detections      []Detection
}

// Detection is a stored merged detection
type Detection struct {
	ID          int64
	RunID       int64
	Class       int
	Label       string
	Probability float32
	Left        int
	Top         int
	Right       int
	Bottom      int
	TileID      int
	Members     int
}

// NewRun builds the record of a run from its configuration and result
func NewRun(image string, width, height int, cfg sahi.Config, res *sahi.Result,
	labels []string) Run {

	run := Run{
		Image:           image,
		Width:           width,
		Height:          height,
		TileWidth:       cfg.TileWidth,
		TileHeight:      cfg.TileHeight,
		OverlapRatio:    cfg.OverlapRatio,
		ConfidenceFloor: cfg.ConfidenceFloor,
		IoUThreshold:    cfg.IoUThreshold,
		TileCount:       res.Stats.TileCount,
		RawCount:        res.Stats.RawDetectionCount,
		MergedCount:     res.Stats.MergedDetectionCount,
		DegenerateCount: res.Stats.DroppedDegenerateCount,
		FailedTiles:     res.Stats.FailedTileCount,
		TimedOutTiles:   res.Stats.TimedOutTileCount,
		SkippedTiles:    res.Stats.SkippedTileCount,
		Cancelled:       res.Cancelled,
		Elapsed:         res.Stats.Elapsed,
		CreatedAt:       time.Now().UTC(),
		Detections:      make([]Detection, 0, len(res.Detections)),
	}

	for _, d := range res.Detections {
		run.Detections = append(run.Detections, Detection{
			Class:       d.Class,
			Label:       sahi.Label(labels, d.Class),
			Probability: d.Probability,
			Left:        d.Box.Left,
			Top:         d.Box.Top,
			Right:       d.Box.Right,
			Bottom:      d.Box.Bottom,
			TileID:      d.TileID,
			Members:     d.Members,
		})
	}

	return run
}

// Store handles SQLite operations
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the SQLite database at path, ":memory:" for a
// temporary database
func Open(path string) (*Store, error) {

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection also keeps an in memory database alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close the database
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		image TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		tile_width INTEGER NOT NULL,
		tile_height INTEGER NOT NULL,
		overlap_ratio REAL NOT NULL,
		confidence_floor REAL NOT NULL,
		iou_threshold REAL NOT NULL,
		tile_count INTEGER NOT NULL,
		raw_count INTEGER NOT NULL,
		merged_count INTEGER NOT NULL,
		degenerate_count INTEGER NOT NULL,
		failed_tiles INTEGER NOT NULL,
		timed_out_tiles INTEGER NOT NULL,
		skipped_tiles INTEGER NOT NULL,
		cancelled BOOLEAN NOT NULL DEFAULT 0,
		elapsed_ns INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		class INTEGER NOT NULL,
		label TEXT NOT NULL,
		probability REAL NOT NULL,
		box_left INTEGER NOT NULL,
		box_top INTEGER NOT NULL,
		box_right INTEGER NOT NULL,
		box_bottom INTEGER NOT NULL,
		tile_id INTEGER NOT NULL,
		members INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_image ON runs(image);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_detections_run_id ON detections(run_id);
	CREATE INDEX IF NOT EXISTS idx_detections_label ON detections(label);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts the run and all of its detections in a single transaction
// and returns the ID of the run
func (s *Store) SaveRun(ctx context.Context, run Run) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)

	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (image, width, height, tile_width, tile_height,
			overlap_ratio, confidence_floor, iou_threshold, tile_count,
			raw_count, merged_count, degenerate_count, failed_tiles,
			timed_out_tiles, skipped_tiles, cancelled, elapsed_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.Image, run.Width, run.Height, run.TileWidth, run.TileHeight,
		run.OverlapRatio, run.ConfidenceFloor, run.IoUThreshold, run.TileCount,
		run.RawCount, run.MergedCount, run.DegenerateCount, run.FailedTiles,
		run.TimedOutTiles, run.SkippedTiles, run.Cancelled, int64(run.Elapsed),
		run.CreatedAt)

	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	runID, err := res.LastInsertId()

	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO detections (run_id, class, label, probability, box_left,
			box_top, box_right, box_bottom, tile_id, members)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}

	defer stmt.Close()

	for _, d := range run.Detections {
		if _, err := stmt.ExecContext(ctx, runID, d.Class, d.Label, d.Probability,
			d.Left, d.Top, d.Right, d.Bottom, d.TileID, d.Members); err != nil {
			return 0, fmt.Errorf("failed to insert detection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return runID, nil
}

// Detections returns the detections of a run ordered by probability
func (s *Store) Detections(ctx context.Context, runID int64) ([]Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, class, label, probability, box_left, box_top,
			box_right, box_bottom, tile_id, members
		FROM detections WHERE run_id = ?
		ORDER BY probability DESC, id ASC
	`, runID)

	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}

	defer rows.Close()

	dets := make([]Detection, 0)

	for rows.Next() {
		var d Detection

		if err := rows.Scan(&d.ID, &d.RunID, &d.Class, &d.Label, &d.Probability,
			&d.Left, &d.Top, &d.Right, &d.Bottom, &d.TileID, &d.Members); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}

		dets = append(dets, d)
	}

	return dets, rows.Err()
}

// Runs returns the most recent runs, newest first, without their detections
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, image, width, height, tile_width, tile_height,
			overlap_ratio, confidence_floor, iou_threshold, tile_count,
			raw_count, merged_count, degenerate_count, failed_tiles,
			timed_out_tiles, skipped_tiles, cancelled, elapsed_ns, created_at
		FROM runs ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer rows.Close()

	runs := make([]Run, 0)

	for rows.Next() {
		var r Run
		var elapsed int64

		if err := rows.Scan(&r.ID, &r.Image, &r.Width, &r.Height, &r.TileWidth,
			&r.TileHeight, &r.OverlapRatio, &r.ConfidenceFloor, &r.IoUThreshold,
			&r.TileCount, &r.RawCount, &r.MergedCount, &r.DegenerateCount,
			&r.FailedTiles, &r.TimedOutTiles, &r.SkippedTiles, &r.Cancelled,
			&elapsed, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		r.Elapsed = time.Duration(elapsed)
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// LabelCounts returns the number of detections per label across all runs,
// the nightly catch count
func (s *Store) LabelCounts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT label, COUNT(*) FROM detections GROUP BY label
	`)

	if err != nil {
		return nil, fmt.Errorf("failed to count detections: %w", err)
	}

	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var label string
		var n int

		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}

		counts[label] = n
	}

	return counts, rows.Err()
}
