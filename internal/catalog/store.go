package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"astrocat/internal/engine"
)

// Store wraps SQLite-backed persistence for the frame catalog. It implements
// engine.FrameSource with one bulk query per frame class, so a refresh issues
// a constant number of queries regardless of catalog size.
type Store struct {
	DB *sql.DB // Export for direct database access

	// Optional inclusive session-date range applied to queries; empty means
	// unbounded.
	from, to string
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS frames (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            filename TEXT,
            kind TEXT NOT NULL,
            is_master BOOLEAN NOT NULL DEFAULT FALSE,
            object TEXT,
            filter TEXT,
            exposure REAL,
            ccd_temp REAL,
            xbinning INTEGER NOT NULL,
            ybinning INTEGER NOT NULL,
            session_date TEXT,
            instrument TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_frames_kind ON frames(kind);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_session_date ON frames(session_date);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_instrument ON frames(instrument);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// WithRange returns a view of the store restricted to session dates within
// [from, to] (YYYY-MM-DD, inclusive). Empty bounds stay unbounded.
func (s *Store) WithRange(from, to string) *Store {
	view := *s
	view.from = from
	view.to = to
	return &view
}

const frameColumns = `id, kind, is_master, object, filter, exposure, ccd_temp,
        xbinning, ybinning, session_date, instrument`

// Lights returns all Light frames in the configured range.
func (s *Store) Lights(ctx context.Context) ([]engine.Frame, error) {
	query, args := s.buildQuery(`kind = ?`, string(engine.KindLight))
	return s.queryFrames(ctx, query, args)
}

// Calibration returns all Dark, Bias and Flat frames in the configured range.
func (s *Store) Calibration(ctx context.Context) ([]engine.Frame, error) {
	query, args := s.buildQuery(`kind IN (?, ?, ?)`,
		string(engine.KindDark), string(engine.KindBias), string(engine.KindFlat))
	return s.queryFrames(ctx, query, args)
}

func (s *Store) buildQuery(kindClause string, kindArgs ...string) (string, []any) {
	query := `SELECT ` + frameColumns + ` FROM frames WHERE ` + kindClause
	args := make([]any, 0, len(kindArgs)+2)
	for _, a := range kindArgs {
		args = append(args, a)
	}
	if s.from != "" {
		query += ` AND session_date >= ?`
		args = append(args, s.from)
	}
	if s.to != "" {
		query += ` AND session_date <= ?`
		args = append(args, s.to)
	}
	query += ` ORDER BY id;`
	return query, args
}

func (s *Store) queryFrames(ctx context.Context, query string, args []any) ([]engine.Frame, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var frames []engine.Frame
	for rows.Next() {
		var (
			f          engine.Frame
			kind       string
			object     sql.NullString
			filter     sql.NullString
			exposure   sql.NullFloat64
			temp       sql.NullFloat64
			date       sql.NullString
			instrument sql.NullString
		)
		if err := rows.Scan(&f.ID, &kind, &f.Master, &object, &filter, &exposure, &temp,
			&f.BinX, &f.BinY, &date, &instrument); err != nil {
			return nil, err
		}
		f.Kind = engine.Kind(kind)
		if object.Valid {
			f.Object = &object.String
		}
		if filter.Valid {
			f.Filter = &filter.String
		}
		if exposure.Valid {
			f.Exposure = &exposure.Float64
		}
		if temp.Valid {
			f.Temperature = &temp.Float64
		}
		if date.Valid {
			f.Date = &date.String
		}
		if instrument.Valid {
			f.Instrument = &instrument.String
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// InsertFrame persists one frame record and returns its assigned id.
func (s *Store) InsertFrame(ctx context.Context, filename string, f engine.Frame) (int64, error) {
	if s == nil {
		return 0, errors.New("store not initialized")
	}
	res, err := s.DB.ExecContext(ctx, `INSERT INTO frames
        (filename, kind, is_master, object, filter, exposure, ccd_temp, xbinning, ybinning, session_date, instrument)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		filename, string(f.Kind), f.Master,
		nullStr(f.Object), nullStr(f.Filter),
		nullF64(f.Exposure), nullF64(f.Temperature),
		f.BinX, f.BinY, nullStr(f.Date), nullStr(f.Instrument))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Counts summarizes the catalog by capture kind.
type Counts struct {
	Lights  int `json:"lights"`
	Darks   int `json:"darks"`
	Bias    int `json:"bias"`
	Flats   int `json:"flats"`
	Masters int `json:"masters"`
}

// Count returns per-kind frame totals.
func (s *Store) Count(ctx context.Context) (Counts, error) {
	var c Counts
	if s == nil {
		return c, errors.New("store not initialized")
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT kind, is_master, COUNT(*) FROM frames GROUP BY kind, is_master;`)
	if err != nil {
		return c, err
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var master bool
		var n int
		if err := rows.Scan(&kind, &master, &n); err != nil {
			return c, err
		}
		if master {
			c.Masters += n
		}
		switch engine.Kind(kind) {
		case engine.KindLight:
			c.Lights += n
		case engine.KindDark:
			c.Darks += n
		case engine.KindBias:
			c.Bias += n
		case engine.KindFlat:
			c.Flats += n
		}
	}
	return c, rows.Err()
}

func nullStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
