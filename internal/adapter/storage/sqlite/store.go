package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/its-jojoo/otterclipd/internal/adapter/imaging"
	"github.com/its-jojoo/otterclipd/internal/adapter/storage"
	"github.com/its-jojoo/otterclipd/internal/core"
	"github.com/its-jojoo/otterclipd/internal/logging"
)

const (
	dbDirPerm = 0o750

	// Keeps IN (...) lists well below SQLite's bound-variable limit.
	deleteChunk = 500
)

type Store struct {
	db        *sql.DB
	now       func() time.Time
	thumbnail storage.Thumbnailer
	retry     storage.RetryPolicy
}

var _ storage.Store = (*Store)(nil)

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithThumbnailer(t storage.Thumbnailer) Option {
	return func(s *Store) { s.thumbnail = t }
}

func WithRetryPolicy(p storage.RetryPolicy) Option {
	return func(s *Store) { s.retry = p }
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), dbDirPerm); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL allows concurrent readers; writers take an IMMEDIATE lock and
	// wait on busy_timeout before the retry policy kicks in.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database %s: %w", path, err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:        db,
		now:       time.Now,
		thumbnail: imaging.Thumbnail,
		retry:     storage.DefaultRetry,
	}
	for _, opt := range opts {
		opt(s)
	}

	logging.FromContext(ctx).Info().Str("path", path).Msg("database ready")
	return s, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range []string{
		"busy_timeout(5000)",
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"foreign_keys(1)",
		"temp_store(MEMORY)",
	} {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func (s *Store) Close() error   { return s.db.Close() }
func (s *Store) Now() time.Time { return s.now() }

// isTransient reports lock contention that is worth retrying.
func isTransient(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func (s *Store) do(ctx context.Context, op string, fn func() error) error {
	return s.retry.Retry(ctx, op, isTransient, fn)
}

func (s *Store) Record(ctx context.Context, payload []byte, kind core.Kind, mime, hash string) (int64, error) {
	if len(payload) == 0 {
		return 0, errors.New("record: empty payload")
	}
	if _, err := core.ParseKind(string(kind)); err != nil {
		return 0, fmt.Errorf("record: %w", err)
	}
	if hash == "" {
		hash = core.Fingerprint(payload)
	}
	if mime == "" && kind == core.KindText {
		mime = core.MIMEText
	}

	var (
		id    int64
		found bool
	)
	err := s.do(ctx, "record", func() error {
		var err error
		id, found, err = s.touchHash(ctx, hash)
		return err
	})
	if err != nil {
		return 0, err
	}
	if found {
		logging.FromContext(ctx).Debug().Int64("id", id).Str("hash", hash).Msg("duplicate detected, updated last_used_at")
		return id, nil
	}

	var title, folded string
	var thumb []byte
	switch kind {
	case core.KindText:
		text := string(payload)
		title = core.Title(text)
		folded = core.Fold(text)
	case core.KindImage:
		title = core.ImageTitle(hash)
		if s.thumbnail != nil {
			t, terr := s.thumbnail(payload)
			if terr != nil {
				logging.FromContext(ctx).Warn().Err(terr).Str("hash", hash).Msg("thumbnail generation failed, storing without thumbnail")
			} else {
				thumb = t
			}
		}
	}

	ts := s.now().UnixMilli()
	err = s.do(ctx, "record", func() error {
		// A concurrent Record of the same hash lands in ON CONFLICT and
		// resolves to the same row.
		return s.db.QueryRowContext(ctx, `
INSERT INTO clips(content_hash, kind, mime, title, payload, folded, thumbnail, created_at, last_used_at, starred)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
ON CONFLICT(content_hash) DO UPDATE SET last_used_at = MAX(clips.last_used_at, excluded.last_used_at)
RETURNING id
`, hash, string(kind), mime, title, payload, folded, thumb, ts, ts).Scan(&id)
	})
	if err != nil {
		return 0, err
	}

	logging.FromContext(ctx).Info().Int64("id", id).Str("kind", string(kind)).Str("hash", hash).Int("bytes", len(payload)).Msg("recorded clip")
	return id, nil
}

func (s *Store) touchHash(ctx context.Context, hash string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE clips SET last_used_at = MAX(last_used_at, ?) WHERE content_hash = ? RETURNING id`,
		s.now().UnixMilli(), hash,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

const summaryColumns = `id, content_hash, kind, mime, title,
CASE kind WHEN 'text' THEN payload END, thumbnail,
created_at, last_used_at, starred`

func (s *Store) List(ctx context.Context, limit int, starredOnly bool) ([]core.Item, error) {
	where := ""
	if starredOnly {
		where = "WHERE starred = 1"
	}
	return s.query(ctx, "list", `SELECT `+summaryColumns+` FROM clips `+where+`
ORDER BY last_used_at DESC, id DESC LIMIT ?`, storage.ClampLimit(limit))
}

func (s *Store) Gallery(ctx context.Context, limit int) ([]core.Item, error) {
	return s.query(ctx, "gallery", `SELECT `+summaryColumns+` FROM clips WHERE kind = 'image'
ORDER BY last_used_at DESC, id DESC LIMIT ?`, storage.ClampLimit(limit))
}

func (s *Store) Search(ctx context.Context, query string, limit int) ([]core.Item, error) {
	terms := core.Terms(query)
	if len(terms) == 0 {
		return []core.Item{}, nil
	}

	var b strings.Builder
	args := make([]any, 0, len(terms)+1)
	b.WriteString(`SELECT ` + summaryColumns + ` FROM clips WHERE kind = 'text'`)
	for _, t := range terms {
		b.WriteString(` AND instr(folded, ?) > 0`)
		args = append(args, t)
	}
	b.WriteString(` ORDER BY last_used_at DESC, id DESC LIMIT ?`)
	args = append(args, storage.ClampLimit(limit))

	return s.query(ctx, "search", b.String(), args...)
}

func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]core.Item, error) {
	var out []core.Item
	err := s.do(ctx, op, func() error {
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]core.Item, 0)
		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				return err
			}
			out = append(out, it)
		}
		return rows.Err()
	})
	return out, err
}

func scanItem(rows *sql.Rows) (core.Item, error) {
	var (
		it          core.Item
		kind        string
		text, thumb []byte
		cAt, luAt   int64
		starred     int
	)
	if err := rows.Scan(&it.ID, &it.Hash, &kind, &it.MIME, &it.Title, &text, &thumb, &cAt, &luAt, &starred); err != nil {
		return core.Item{}, err
	}
	it.Kind = core.Kind(kind)
	it.Text = string(text)
	it.Thumbnail = thumb
	it.CreatedAt = time.UnixMilli(cAt)
	it.LastUsedAt = time.UnixMilli(luAt)
	it.Starred = starred == 1
	return it, nil
}

func (s *Store) SetStarred(ctx context.Context, id int64, starred bool) error {
	return s.do(ctx, "set_starred", func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE clips SET starred = ? WHERE id = ?`, boolToInt(starred), id)
		return affectedOrNotFound(res, err, id)
	})
}

func (s *Store) Touch(ctx context.Context, id int64) error {
	return s.do(ctx, "touch", func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE clips SET last_used_at = MAX(last_used_at, ?) WHERE id = ?`, s.now().UnixMilli(), id)
		return affectedOrNotFound(res, err, id)
	})
}

func affectedOrNotFound(res sql.Result, err error, id int64) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.NotFoundError(id)
	}
	return nil
}

func (s *Store) Payload(ctx context.Context, id int64) (core.Payload, error) {
	var p core.Payload
	err := s.do(ctx, "get_payload", func() error {
		var kind string
		err := s.db.QueryRowContext(ctx, `SELECT kind, mime, payload FROM clips WHERE id = ?`, id).
			Scan(&kind, &p.MIME, &p.Data)
		if errors.Is(err, sql.ErrNoRows) {
			return core.NotFoundError(id)
		}
		p.Kind = core.Kind(kind)
		return err
	})
	return p, err
}

func (s *Store) Delete(ctx context.Context, ids []int64) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int
	err := s.do(ctx, "delete", func() error {
		deleted = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for start := 0; start < len(ids); start += deleteChunk {
			end := min(start+deleteChunk, len(ids))
			chunk := ids[start:end]

			args := make([]any, len(chunk))
			for i, id := range chunk {
				args[i] = id
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

			res, err := tx.ExecContext(ctx, `DELETE FROM clips WHERE id IN (`+placeholders+`)`, args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			deleted += int(n)
		}
		return tx.Commit()
	})
	return deleted, err
}

func (s *Store) DeleteUnstarred(ctx context.Context) (core.DeleteCounts, error) {
	var counts core.DeleteCounts
	err := s.do(ctx, "delete_unstarred", func() error {
		counts = core.DeleteCounts{}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx, `SELECT kind, COUNT(*) FROM clips WHERE starred = 0 GROUP BY kind`)
		if err != nil {
			return err
		}
		for rows.Next() {
			var kind string
			var n int
			if err := rows.Scan(&kind, &n); err != nil {
				rows.Close()
				return err
			}
			switch core.Kind(kind) {
			case core.KindImage:
				counts.Images = n
			default:
				counts.Items = n
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM clips WHERE starred = 0`); err != nil {
			return err
		}
		return tx.Commit()
	})
	return counts, err
}

func (s *Store) DeleteOlderThan(ctx context.Context, maxAge time.Duration, protectStarred bool) (int, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("delete_older_than: max age must be positive, got %s", maxAge)
	}
	cutoff := s.now().Add(-maxAge).UnixMilli()

	q := `DELETE FROM clips WHERE last_used_at < ?`
	if protectStarred {
		q += ` AND starred = 0`
	}

	var deleted int
	err := s.do(ctx, "delete_older_than", func() error {
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = int(n)
		return err
	})
	return deleted, err
}

func (s *Store) Stats(ctx context.Context) (core.Stats, error) {
	var st core.Stats
	err := s.do(ctx, "stats", func() error {
		return s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(kind = 'image'), 0),
       COALESCE(SUM(starred), 0)
FROM clips`).Scan(&st.Total, &st.Images, &st.Starred)
	})
	return st, err
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
