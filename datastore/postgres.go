package datastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/errors"
)

// Postgres talks to the hosted database directly over the Postgres wire
// protocol. It expects the same tables the PostgREST API exposes.
type Postgres struct {
	pool   *pgxpool.Pool
	tables Tables
}

// ConnectPostgres opens a connection pool for databaseURL and pings it.
func ConnectPostgres(ctx context.Context, databaseURL string, tables Tables) (*Postgres, error) {
	if err := tables.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Annotate(err, "parse database URL")
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Annotate(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Annotate(err, "ping database")
	}
	return &Postgres{pool: pool, tables: tables}, nil
}

// Close closes the pool.
func (db *Postgres) Close() error {
	db.pool.Close()
	return nil
}

// Ping checks the pool can reach the database.
func (db *Postgres) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// classify maps constraint and data errors to NotValid so they are not
// reported as an outage.
func classify(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "22", "23":
			return errors.NewNotValid(err, what)
		}
	}
	return errors.Annotate(err, what)
}

// InsertEmail stores rec and returns it with the generated id.
func (db *Postgres) InsertEmail(ctx context.Context, rec EmailRecord) (EmailRecord, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (email, project_name, project_type, features, complexity, estimation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text
	`, db.tables.Emails)
	err := db.pool.QueryRow(ctx, query,
		rec.Email, rec.ProjectName, rec.ProjectType, rec.Features, rec.Complexity, rec.Estimation, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return EmailRecord{}, classify(err, "insert email")
	}
	return rec, nil
}

// ListEmails returns captured emails, newest first.
func (db *Postgres) ListEmails(ctx context.Context, limit, offset int) ([]EmailRecord, error) {
	query := fmt.Sprintf(`
		SELECT id::text, email, project_name, project_type, features, complexity, COALESCE(estimation, ''), created_at
		FROM %s
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, db.tables.Emails)
	rows, err := db.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, errors.Annotate(err, "query emails")
	}
	defer rows.Close()

	records := []EmailRecord{}
	for rows.Next() {
		var rec EmailRecord
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.ProjectName, &rec.ProjectType, &rec.Features, &rec.Complexity, &rec.Estimation, &rec.CreatedAt); err != nil {
			return nil, errors.Annotate(err, "scan email")
		}
		records = append(records, rec)
	}
	return records, errors.Trace(rows.Err())
}

const pgPostColumns = `id::text, title, slug, content, COALESCE(excerpt, ''), COALESCE(featured_image, ''), author, published, tags, created_at, updated_at`

func scanPgPost(row pgx.Row, extra ...any) (Post, error) {
	var p Post
	dest := append([]any{&p.ID, &p.Title, &p.Slug, &p.Content, &p.Excerpt, &p.FeaturedImage, &p.Author, &p.Published, &p.Tags, &p.CreatedAt, &p.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Post{}, err
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p, nil
}

// CreatePost inserts p; the database assigns the id.
func (db *Postgres) CreatePost(ctx context.Context, p Post) (Post, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (title, slug, content, excerpt, featured_image, author, published, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING %s
	`, db.tables.Posts, pgPostColumns)
	created, err := scanPgPost(db.pool.QueryRow(ctx, query,
		p.Title, p.Slug, p.Content, p.Excerpt, p.FeaturedImage, p.Author, p.Published, NormalizeTags(p.Tags), p.CreatedAt, p.UpdatedAt))
	if err != nil {
		return Post{}, classify(err, "insert post")
	}
	return created, nil
}

// UpdatePost applies the non-nil fields of patch.
func (db *Postgres) UpdatePost(ctx context.Context, id string, patch PostPatch) (Post, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
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
		set("published", *patch.Published)
	}
	if patch.Tags != nil {
		set("tags", NormalizeTags(*patch.Tags))
	}
	set("updated_at", patch.UpdatedAt)
	args = append(args, id)

	// SAFETY: column names above are constants; values are parameterized.
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id::text = $%d RETURNING %s`,
		db.tables.Posts, strings.Join(sets, ", "), len(args), pgPostColumns)
	p, err := scanPgPost(db.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, errors.NotFoundf("post %q", id)
	}
	if err != nil {
		return Post{}, classify(err, "update post")
	}
	return p, nil
}

// DeletePost removes the post and returns the deleted row.
func (db *Postgres) DeletePost(ctx context.Context, id string) (Post, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id::text = $1 RETURNING %s`, db.tables.Posts, pgPostColumns)
	p, err := scanPgPost(db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, errors.NotFoundf("post %q", id)
	}
	if err != nil {
		return Post{}, errors.Annotate(err, "delete post")
	}
	return p, nil
}

// ListPosts returns a page of posts with the total count from COUNT(*) OVER().
func (db *Postgres) ListPosts(ctx context.Context, opts ListOptions) (Page, error) {
	var conds []string
	var args []any
	if opts.PublishedOnly {
		conds = append(conds, "published = true")
	}
	if opts.Tag != "" {
		args = append(args, opts.Tag)
		conds = append(conds, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total_count
		FROM %s
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, pgPostColumns, db.tables.Posts, where, len(args)+1, len(args)+2)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return Page{}, errors.Annotate(err, "query posts")
	}
	defer rows.Close()

	page := Page{Posts: []Post{}}
	var total int64
	for rows.Next() {
		p, err := scanPgPost(rows, &total)
		if err != nil {
			return Page{}, errors.Annotate(err, "scan post")
		}
		page.Posts = append(page.Posts, p)
	}
	if err := rows.Err(); err != nil {
		return Page{}, errors.Annotate(err, "iterate posts")
	}
	page.Total = int(total)
	return page, nil
}

// GetPost returns one post by id or slug.
func (db *Postgres) GetPost(ctx context.Context, q PostQuery) (Post, error) {
	col, val := "slug", q.Slug
	if q.ID != "" {
		col, val = "id::text", q.ID
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, pgPostColumns, db.tables.Posts, col)
	if q.PublishedOnly {
		query += " AND published = true"
	}
	query += " ORDER BY created_at DESC LIMIT 1"
	p, err := scanPgPost(db.pool.QueryRow(ctx, query, val))
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, errors.NotFoundf("post %q", val)
	}
	if err != nil {
		return Post{}, errors.Annotate(err, "get post")
	}
	return p, nil
}
