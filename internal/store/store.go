package store

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitchelldurbincs/hanamikoji-zero/internal/game/core"
)

//go:embed schema.sql
var schema embed.FS

// ErrNoReports is returned by LatestReport for a run without reports.
var ErrNoReports = errors.New("no reports for run")

// Report is one monitor tick.
type Report struct {
	Frames         int64
	PositionFrames [core.NumPositions]int64
	FPS            float64
	PositionFPS    [core.NumPositions]float64
	Stats          map[string]float64
	CreatedAt      time.Time
}

type DB struct{ *pgxpool.Pool }

func Open(ctx context.Context, dsn string) (*DB, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close()                         { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

// StartRun records a run, or refreshes its flags when it is resumed.
func (db *DB) StartRun(ctx context.Context, runID string, flags map[string]string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO runs(id, flags)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		   SET flags = EXCLUDED.flags,
		       stopped_at = NULL
	`, runID, flags)
	return err
}

func (db *DB) StopRun(ctx context.Context, runID string) error {
	_, err := db.Exec(ctx, `UPDATE runs SET stopped_at = now() WHERE id = $1`, runID)
	return err
}

func (db *DB) WriteReport(ctx context.Context, runID string, r Report) error {
	_, err := db.Exec(ctx, `
		INSERT INTO reports(run_id, frames, frames_first, frames_second, fps, fps_first, fps_second, stats)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, runID,
		r.Frames, r.PositionFrames[core.PositionFirst], r.PositionFrames[core.PositionSecond],
		r.FPS, r.PositionFPS[core.PositionFirst], r.PositionFPS[core.PositionSecond],
		r.Stats)
	return err
}

// LatestReport returns the report with the most frames for runID.
func (db *DB) LatestReport(ctx context.Context, runID string) (Report, error) {
	var r Report
	err := db.QueryRow(ctx, `
		SELECT frames, frames_first, frames_second, fps, fps_first, fps_second, stats, created_at
		  FROM reports
		 WHERE run_id = $1
		 ORDER BY frames DESC, id DESC
		 LIMIT 1
	`, runID).Scan(
		&r.Frames, &r.PositionFrames[core.PositionFirst], &r.PositionFrames[core.PositionSecond],
		&r.FPS, &r.PositionFPS[core.PositionFirst], &r.PositionFPS[core.PositionSecond],
		&r.Stats, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Report{}, ErrNoReports
	}
	return r, err
}
