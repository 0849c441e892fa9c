// Package catalog is a queryable SQLite projection of the archived
// sessions, kept up to date from the core events.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screencap"
	"github.com/xaionaro-go/screencap/meta"

	_ "modernc.org/sqlite"
)

type Entry struct {
	VideoID    string                `json:"video_id"`
	Dir        string                `json:"dir"`
	ArchivedAt time.Time             `json:"archived_at"`
	Display    screencap.Dimensions  `json:"display"`
	Camera     *screencap.Dimensions `json:"camera,omitempty"`
	Degraded   []string              `json:"degraded,omitempty"`

	RenderedPath string    `json:"rendered_path,omitempty"`
	RenderedAt   time.Time `json:"rendered_at,omitzero"`
}

type Catalog struct {
	db *sql.DB
}

func Open(ctx context.Context, dbPath string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: unable to create the directory for '%s': %w", screencap.ErrIO, dbPath, err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open '%s': %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)
	c := &Catalog{db: db}
	if err := c.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debugf(ctx, "opened the catalog at '%s'", dbPath)
	return c, nil
}

func (c *Catalog) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
  video_id TEXT PRIMARY KEY,
  dir TEXT NOT NULL,
  archived_at TEXT NOT NULL,
  display_width INTEGER NOT NULL,
  display_height INTEGER NOT NULL,
  camera_width INTEGER,
  camera_height INTEGER,
  degraded TEXT NOT NULL DEFAULT '',
  rendered_path TEXT NOT NULL DEFAULT '',
  rendered_at TEXT NOT NULL DEFAULT ''
);
`
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("unable to create the sessions table: %w", err)
	}
	return nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Upsert stores the session; the render columns are kept as they are.
func (c *Catalog) Upsert(ctx context.Context, e Entry) error {
	const stmt = `
INSERT INTO sessions (video_id, dir, archived_at, display_width, display_height, camera_width, camera_height, degraded)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(video_id) DO UPDATE SET
  dir=excluded.dir,
  archived_at=excluded.archived_at,
  display_width=excluded.display_width,
  display_height=excluded.display_height,
  camera_width=excluded.camera_width,
  camera_height=excluded.camera_height,
  degraded=excluded.degraded;
`
	var camW, camH sql.NullInt64
	if e.Camera != nil {
		camW = sql.NullInt64{Int64: int64(e.Camera.Width), Valid: true}
		camH = sql.NullInt64{Int64: int64(e.Camera.Height), Valid: true}
	}
	_, err := c.db.ExecContext(ctx, stmt,
		e.VideoID,
		e.Dir,
		formatTime(e.ArchivedAt),
		e.Display.Width,
		e.Display.Height,
		camW,
		camH,
		strings.Join(e.Degraded, ","),
	)
	if err != nil {
		return fmt.Errorf("unable to upsert session '%s': %w", e.VideoID, err)
	}
	return nil
}

// Index loads the recording metadata of a finalized session directory and
// upserts it.
func (c *Catalog) Index(
	ctx context.Context,
	videoID string,
	dir string,
	archivedAt time.Time,
	degraded []string,
) error {
	m, err := meta.Load(screencap.SessionLayout{Dir: dir}.MetaPath())
	if err != nil {
		return err
	}
	return c.Upsert(ctx, Entry{
		VideoID:    videoID,
		Dir:        dir,
		ArchivedAt: archivedAt,
		Display:    m.Display,
		Camera:     m.Camera,
		Degraded:   degraded,
	})
}

func (c *Catalog) MarkRendered(
	ctx context.Context,
	videoID string,
	path string,
	at time.Time,
) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE sessions SET rendered_path = ?, rendered_at = ? WHERE video_id = ?`,
		path, formatTime(at), videoID,
	)
	if err != nil {
		return fmt.Errorf("unable to mark session '%s' rendered: %w", videoID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: session '%s' in the catalog", screencap.ErrNotFound, videoID)
	}
	return nil
}

const selectColumns = `video_id, dir, archived_at, display_width, display_height, camera_width, camera_height, degraded, rendered_path, rendered_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                      Entry
		archivedAt, renderedAt string
		camW, camH             sql.NullInt64
		degraded               string
	)
	err := row.Scan(
		&e.VideoID, &e.Dir, &archivedAt,
		&e.Display.Width, &e.Display.Height,
		&camW, &camH,
		&degraded, &e.RenderedPath, &renderedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.ArchivedAt, err = parseTime(archivedAt); err != nil {
		return nil, fmt.Errorf("unable to parse archived_at '%s': %w", archivedAt, err)
	}
	if e.RenderedAt, err = parseTime(renderedAt); err != nil {
		return nil, fmt.Errorf("unable to parse rendered_at '%s': %w", renderedAt, err)
	}
	if camW.Valid && camH.Valid {
		e.Camera = &screencap.Dimensions{Width: int(camW.Int64), Height: int(camH.Int64)}
	}
	if degraded != "" {
		e.Degraded = strings.Split(degraded, ",")
	}
	return &e, nil
}

// List returns the sessions ordered by the archival time, oldest first.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM sessions ORDER BY archived_at, video_id`)
	if err != nil {
		return nil, fmt.Errorf("unable to query the sessions: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to iterate the sessions: %w", err)
	}
	return result, nil
}

func (c *Catalog) Get(ctx context.Context, videoID string) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM sessions WHERE video_id = ?`, videoID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session '%s' in the catalog", screencap.ErrNotFound, videoID)
	}
	return e, err
}

// Follow applies the events to the catalog until the channel is closed or
// ctx is done.
func (c *Catalog) Follow(
	ctx context.Context,
	events <-chan screencap.Event,
) {
	degraded := map[string][]string{}
	for {
		var ev screencap.Event
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			ev = e
		}

		var err error
		switch ev.Type {
		case screencap.EventTypeRecordingStopped:
			degraded[ev.VideoID] = ev.Degraded
		case screencap.EventTypeSessionArchived:
			err = c.Index(ctx, ev.VideoID, ev.Path, ev.Time, degraded[ev.VideoID])
			delete(degraded, ev.VideoID)
		case screencap.EventTypeRenderFinished:
			err = c.MarkRendered(ctx, ev.VideoID, ev.Path, ev.Time)
		}
		if err != nil {
			errmon.ObserveErrorCtx(ctx, fmt.Errorf("unable to apply event %s to the catalog: %w", ev, err))
		}
	}
}
