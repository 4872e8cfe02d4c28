package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	_ "modernc.org/sqlite"
)

// sqliteTimeLayout sorts lexically in chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite is a local Backend used for development and tests. It mirrors the
// hosted tables closely enough that handlers cannot tell the difference.
type SQLite struct {
	db     *sql.DB
	tables Tables
}

// OpenSQLite opens (or creates) the SQLite database at path, ensures the data
// directory exists and creates the tables.
func OpenSQLite(path string, tables Tables) (*SQLite, error) {
	if err := tables.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Annotate(err, "create data dir")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Annotate(err, "open sqlite")
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "set pragmas")
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &SQLite{db: db, tables: tables}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, errors.Annotate(err, "ensure schema")
	}
	return s, nil
}

func (s *SQLite) ensureSchema() error {
	_, err := s.db.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    slug TEXT NOT NULL,
    content TEXT NOT NULL,
    excerpt TEXT NOT NULL DEFAULT '',
    featured_image TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT 'Admin',
    published INTEGER NOT NULL DEFAULT 0,
    tags TEXT NOT NULL DEFAULT ',',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_slug ON %[1]s(slug);
CREATE TABLE IF NOT EXISTS %[2]s (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL,
    project_name TEXT NOT NULL DEFAULT '',
    project_type TEXT NOT NULL DEFAULT '',
    features TEXT NOT NULL DEFAULT '[]',
    complexity INTEGER NOT NULL DEFAULT 0,
    estimation TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
`, s.tables.Posts, s.tables.Emails))
	return err
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertEmail stores rec with a fresh id.
func (s *SQLite) InsertEmail(ctx context.Context, rec EmailRecord) (EmailRecord, error) {
	rec.ID = uuid.NewString()
	features, err := encodeList(rec.Features)
	if err != nil {
		return EmailRecord{}, errors.Annotate(err, "encode features")
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, email, project_name, project_type, features, complexity, estimation, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.tables.Emails),
		rec.ID, rec.Email, rec.ProjectName, rec.ProjectType, features, rec.Complexity, rec.Estimation, formatTime(rec.CreatedAt))
	if err != nil {
		return EmailRecord{}, errors.Annotate(err, "insert email")
	}
	return rec, nil
}

// ListEmails returns captured emails, newest first.
func (s *SQLite) ListEmails(ctx context.Context, limit, offset int) ([]EmailRecord, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, email, project_name, project_type, features, complexity, estimation, created_at FROM %s ORDER BY created_at DESC LIMIT ? OFFSET ?`, s.tables.Emails), limit, offset)
	if err != nil {
		return nil, errors.Annotate(err, "query emails")
	}
	defer rows.Close()

	records := []EmailRecord{}
	for rows.Next() {
		var rec EmailRecord
		var features, created string
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.ProjectName, &rec.ProjectType, &features, &rec.Complexity, &rec.Estimation, &created); err != nil {
			return nil, errors.Annotate(err, "scan email")
		}
		if rec.Features, err = decodeList(features); err != nil {
			return nil, errors.Annotatef(err, "decode features of %s", rec.ID)
		}
		rec.CreatedAt = parseTime(created)
		records = append(records, rec)
	}
	return records, errors.Trace(rows.Err())
}

const sqlitePostColumns = `id, title, slug, content, excerpt, featured_image, author, published, tags, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePost(row rowScanner, extra ...any) (Post, error) {
	var p Post
	var published int
	var tags, created, updated string
	dest := append([]any{&p.ID, &p.Title, &p.Slug, &p.Content, &p.Excerpt, &p.FeaturedImage, &p.Author, &published, &tags, &created, &updated}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Post{}, err
	}
	p.Published = published == 1
	p.Tags = ParseTags(tags)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

// CreatePost inserts p with a fresh id.
func (s *SQLite) CreatePost(ctx context.Context, p Post) (Post, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Tags = NormalizeTags(p.Tags)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.tables.Posts, sqlitePostColumns),
		p.ID, p.Title, p.Slug, p.Content, p.Excerpt, p.FeaturedImage, p.Author, boolInt(p.Published), joinTags(p.Tags), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return Post{}, errors.Annotate(err, "insert post")
	}
	return p, nil
}

// UpdatePost applies the non-nil fields of patch.
func (s *SQLite) UpdatePost(ctx context.Context, id string, patch PostPatch) (Post, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Slug != nil {
		set("slug", *patch.Slug)
	}
	if patch.Content != nil {
		set("content", *patch.Content)
	}
	if patch.Excerpt != nil {
		set("excerpt", *patch.Excerpt)
	}
	if patch.FeaturedImage != nil {
		set("featured_image", *patch.FeaturedImage)
	}
	if patch.Author != nil {
		set("author", *patch.Author)
	}
	if patch.Published != nil {
		set("published", boolInt(*patch.Published))
	}
	if patch.Tags != nil {
		set("tags", joinTags(NormalizeTags(*patch.Tags)))
	}
	set("updated_at", formatTime(patch.UpdatedAt))
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, s.tables.Posts, strings.Join(sets, ", ")), args...)
	if err != nil {
		return Post{}, errors.Annotate(err, "update post")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Post{}, errors.NotFoundf("post %q", id)
	}
	return s.GetPost(ctx, PostQuery{ID: id})
}

// DeletePost removes the post and returns it as it was before deletion.
func (s *SQLite) DeletePost(ctx context.Context, id string) (Post, error) {
	p, err := s.GetPost(ctx, PostQuery{ID: id})
	if err != nil {
		return Post{}, err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.tables.Posts), id); err != nil {
		return Post{}, errors.Annotate(err, "delete post")
	}
	return p, nil
}

// ListPosts returns one page of posts, newest first.
func (s *SQLite) ListPosts(ctx context.Context, opts ListOptions) (Page, error) {
	var conds []string
	var args []any
	if opts.PublishedOnly {
		conds = append(conds, "published = 1")
	}
	if opts.Tag != "" {
		conds = append(conds, "instr(lower(tags), ',' || ? || ',') > 0")
		args = append(args, opts.Tag)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) OVER() FROM %s %s ORDER BY created_at DESC LIMIT ? OFFSET ?`, sqlitePostColumns, s.tables.Posts, where), args...)
	if err != nil {
		return Page{}, errors.Annotate(err, "query posts")
	}
	defer rows.Close()

	page := Page{Posts: []Post{}}
	for rows.Next() {
		p, err := scanSQLitePost(rows, &page.Total)
		if err != nil {
			return Page{}, errors.Annotate(err, "scan post")
		}
		page.Posts = append(page.Posts, p)
	}
	if err := rows.Err(); err != nil {
		return Page{}, errors.Trace(err)
	}
	if len(page.Posts) == 0 && opts.Offset > 0 {
		total, err := s.countPosts(ctx, where, args[:len(args)-2])
		if err != nil {
			return Page{}, err
		}
		page.Total = total
	}
	return page, nil
}

// countPosts is needed when the requested page is past the last row, since
// the window count is only available on returned rows.
func (s *SQLite) countPosts(ctx context.Context, where string, args []any) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, s.tables.Posts, where), args...).Scan(&n)
	return n, errors.Annotate(err, "count posts")
}

// GetPost returns one post by id or slug.
func (s *SQLite) GetPost(ctx context.Context, q PostQuery) (Post, error) {
	col, val := "slug", q.Slug
	if q.ID != "" {
		col, val = "id", q.ID
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`, sqlitePostColumns, s.tables.Posts, col)
	if q.PublishedOnly {
		query += " AND published = 1"
	}
	query += " ORDER BY created_at DESC LIMIT 1"
	p, err := scanSQLitePost(s.db.QueryRowContext(ctx, query, val))
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, errors.NotFoundf("post %q", val)
	}
	if err != nil {
		return Post{}, errors.Annotate(err, "get post")
	}
	return p, nil
}

// ParseTags splits a comma-delimited tag string (e.g. ",go,web,") into a slice.
func ParseTags(tagString string) []string {
	tagString = strings.Trim(tagString, ",")
	if tagString == "" {
		return []string{}
	}
	parts := strings.Split(tagString, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func joinTags(tags []string) string {
	return "," + strings.Join(tags, ",") + ","
}

// encodeList stores free-text lists as JSON so entries may contain commas.
func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func decodeList(s string) ([]string, error) {
	items := []string{}
	if s == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
