// Package store persists finalized presentations in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/dgallion1/deckgen/internal/deck"
)

// ErrNotFound is returned when a presentation does not exist or is not shared.
var ErrNotFound = errors.New("presentation not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Store is a presentation repository over database/sql.
type Store struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

// Summary is a list entry without slide content.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Slides    int       `json:"slides"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS presentations (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		outline    TEXT NOT NULL,
		slides     TEXT NOT NULL,
		slide_count INTEGER NOT NULL DEFAULT 0,
		theme      TEXT NOT NULL DEFAULT '',
		language   TEXT NOT NULL DEFAULT '',
		public     INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_presentations_created ON presentations(created_at)`,
}

// Open connects to the database and ensures the schema exists. For SQLite
// the dsn is a file path; for PostgreSQL it is a connection URL.
func Open(ctx context.Context, driver, dsn string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("component", "store", "driver", driver)

	var db *sql.DB
	var err error
	switch driver {
	case DriverSQLite, "sqlite3", "":
		driver = DriverSQLite
		if strings.TrimSpace(dsn) == "" {
			return nil, errors.New("sqlite path is required")
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		uri := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(dsn))
		db, err = sql.Open("sqlite", uri)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	case DriverPostgres, "postgres", "postgresql":
		driver = DriverPostgres
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	s := &Store{db: db, driver: driver, log: log}
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	log.Info("store ready")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Save inserts or replaces a presentation. The slides are validated first.
func (s *Store) Save(ctx context.Context, p *deck.Presentation) error {
	if p.ID == "" {
		return errors.New("presentation id is required")
	}
	slidesJSON, err := ValidateSlides(p.Slides)
	if err != nil {
		return err
	}
	outline := p.Outline
	if outline == nil {
		outline = []string{}
	}
	outlineJSON, err := json.Marshal(outline)
	if err != nil {
		return fmt.Errorf("marshal outline: %w", err)
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	q := s.rebind(`INSERT INTO presentations (id, title, outline, slides, slide_count, theme, language, public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, outline = excluded.outline, slides = excluded.slides,
			slide_count = excluded.slide_count, theme = excluded.theme, language = excluded.language,
			public = excluded.public, updated_at = excluded.updated_at`)
	_, err = s.db.ExecContext(ctx, q,
		p.ID, p.Title, string(outlineJSON), string(slidesJSON), len(p.Slides), p.Theme, p.Language,
		boolInt(p.Public), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save presentation %s: %w", p.ID, err)
	}
	s.log.Debug("presentation saved", "id", p.ID, "slides", len(p.Slides))
	return nil
}

// Get loads a presentation by id.
func (s *Store) Get(ctx context.Context, id string) (*deck.Presentation, error) {
	return s.get(ctx, id, false)
}

// GetPublic loads a presentation only if it has been shared.
func (s *Store) GetPublic(ctx context.Context, id string) (*deck.Presentation, error) {
	return s.get(ctx, id, true)
}

func (s *Store) get(ctx context.Context, id string, publicOnly bool) (*deck.Presentation, error) {
	q := `SELECT id, title, outline, slides, theme, language, public, created_at, updated_at
		FROM presentations WHERE id = ?`
	if publicOnly {
		q += ` AND public = 1`
	}
	row := s.db.QueryRowContext(ctx, s.rebind(q), id)

	var p deck.Presentation
	var outline, slides, created, updated string
	var public int
	err := row.Scan(&p.ID, &p.Title, &outline, &slides, &p.Theme, &p.Language, &public, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get presentation %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(outline), &p.Outline); err != nil {
		return nil, fmt.Errorf("decode outline: %w", err)
	}
	if err := json.Unmarshal([]byte(slides), &p.Slides); err != nil {
		return nil, fmt.Errorf("decode slides: %w", err)
	}
	p.Public = public != 0
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

// List returns presentations newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Summary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, title, slide_count, public, created_at, updated_at
		FROM presentations ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list presentations: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sm Summary
		var public int
		var created, updated string
		if err := rows.Scan(&sm.ID, &sm.Title, &sm.Slides, &public, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan presentation: %w", err)
		}
		sm.Public = public != 0
		sm.CreatedAt = parseTime(created)
		sm.UpdatedAt = parseTime(updated)
		out = append(out, sm)
	}
	return out, rows.Err()
}

// Delete removes a presentation.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM presentations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete presentation %s: %w", id, err)
	}
	return expectOne(res)
}

// SetPublic toggles sharing.
func (s *Store) SetPublic(ctx context.Context, id string, public bool) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE presentations SET public = ?, updated_at = ? WHERE id = ?`),
		boolInt(public), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("share presentation %s: %w", id, err)
	}
	return expectOne(res)
}

// UpdateImage fills in the resolved root image URL of one slide. Results for
// slides that no longer exist or whose query changed are ignored.
func (s *Store) UpdateImage(ctx context.Context, id, slideID, query, url string) (bool, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	applied := false
	for i := range p.Slides {
		sl := &p.Slides[i]
		if sl.ID == slideID && sl.RootImage != nil && sl.RootImage.Query == query {
			sl.RootImage.URL = url
			applied = true
		}
	}
	if !applied {
		return false, nil
	}
	if err := s.Save(ctx, p); err != nil {
		return false, err
	}
	return true, nil
}

// ValidateSlides checks a slide list against the embedded JSON schema and
// returns its JSON encoding.
func ValidateSlides(slides []deck.Slide) ([]byte, error) {
	if slides == nil {
		slides = []deck.Slide{}
	}
	data, err := json.Marshal(slides)
	if err != nil {
		return nil, fmt.Errorf("marshal slides: %w", err)
	}
	if err := validateJSON(data); err != nil {
		return nil, err
	}
	return data, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
