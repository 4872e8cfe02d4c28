package datastore

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/juju/errors"
)

// Logger is the subset of echo.Logger the store writes to.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Backend is implemented by each concrete store (PostgREST, Postgres, SQLite).
// Backends return juju NotFound errors for missing rows and NotValid errors
// for rejected input; every other error is treated as the store being
// unavailable.
type Backend interface {
	InsertEmail(ctx context.Context, rec EmailRecord) (EmailRecord, error)
	ListEmails(ctx context.Context, limit, offset int) ([]EmailRecord, error)
	CreatePost(ctx context.Context, p Post) (Post, error)
	UpdatePost(ctx context.Context, id string, patch PostPatch) (Post, error)
	DeletePost(ctx context.Context, id string) (Post, error)
	ListPosts(ctx context.Context, opts ListOptions) (Page, error)
	GetPost(ctx context.Context, q PostQuery) (Post, error)
	Ping(ctx context.Context) error
	Close() error
}

// Tables names the two tables used by every backend.
type Tables struct {
	Emails string
	Posts  string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate rejects table names that are not plain SQL identifiers.
func (t Tables) Validate() error {
	for _, name := range []string{t.Emails, t.Posts} {
		if !identRe.MatchString(name) {
			return errors.NotValidf("table name %q", name)
		}
	}
	return nil
}

// Store is the data-store adapter. A Store without a backend is disabled:
// every operation fails immediately with ErrUnavailable.
type Store struct {
	backend Backend
	logger  Logger
	now     func() time.Time
}

// NewStore wraps backend. Pass a nil backend to build a disabled store.
func NewStore(backend Backend, logger Logger) *Store {
	return &Store{backend: backend, logger: logger, now: time.Now}
}

// Enabled reports whether the store has a backend.
func (s *Store) Enabled() bool {
	return s.backend != nil
}

// Close releases the backend's resources.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// Ping checks connectivity to the backend.
func (s *Store) Ping(ctx context.Context) error {
	if s.backend == nil {
		return errors.Annotate(ErrUnavailable, "store disabled")
	}
	return unavailable(s.backend.Ping(ctx))
}

func run[T any](s *Store, op string, fn func(Backend) (T, error)) Result[T] {
	if s.backend == nil {
		s.logger.Warnf("datastore: %s skipped: store not configured", op)
		return Result[T]{Err: errors.Annotate(ErrUnavailable, "store disabled")}
	}
	v, err := fn(s.backend)
	switch {
	case err == nil:
		return Result[T]{Value: v}
	case errors.Is(err, errors.NotFound):
		s.logger.Debugf("datastore: %s: %v", op, err)
	case errors.Is(err, errors.NotValid):
		s.logger.Warnf("datastore: %s: %v", op, err)
	default:
		s.logger.Errorf("datastore: %s: %v", op, err)
		err = unavailable(err)
	}
	return Result[T]{Err: err}
}

// InsertEmail persists a captured email.
func (s *Store) InsertEmail(ctx context.Context, rec EmailRecord) Result[EmailRecord] {
	rec.Email = strings.TrimSpace(rec.Email)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if rec.Features == nil {
		rec.Features = []string{}
	}
	return run(s, "insert email", func(b Backend) (EmailRecord, error) {
		return b.InsertEmail(ctx, rec)
	})
}

// ListEmails returns captured emails, newest first.
func (s *Store) ListEmails(ctx context.Context, limit, offset int) Result[[]EmailRecord] {
	return run(s, "list emails", func(b Backend) ([]EmailRecord, error) {
		return b.ListEmails(ctx, limit, offset)
	})
}

// CreatePost inserts a new post, filling in the author and timestamps.
func (s *Store) CreatePost(ctx context.Context, p Post) Result[Post] {
	if p.Author == "" {
		p.Author = DefaultAuthor
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	return run(s, "create post", func(b Backend) (Post, error) {
		return b.CreatePost(ctx, p)
	})
}

// UpdatePost applies patch to the post with the given id.
func (s *Store) UpdatePost(ctx context.Context, id string, patch PostPatch) Result[Post] {
	patch.UpdatedAt = s.now().UTC()
	return run(s, "update post "+id, func(b Backend) (Post, error) {
		return b.UpdatePost(ctx, id, patch)
	})
}

// DeletePost removes the post with the given id and returns the deleted row.
func (s *Store) DeletePost(ctx context.Context, id string) Result[Post] {
	return run(s, "delete post "+id, func(b Backend) (Post, error) {
		return b.DeletePost(ctx, id)
	})
}

// ListPosts returns a page of posts ordered by creation time, newest first.
func (s *Store) ListPosts(ctx context.Context, opts ListOptions) Result[Page] {
	opts.Tag = strings.ToLower(strings.TrimSpace(opts.Tag))
	return run(s, "list posts", func(b Backend) (Page, error) {
		page, err := b.ListPosts(ctx, opts)
		if page.Posts == nil {
			page.Posts = []Post{}
		}
		return page, err
	})
}

// GetPostBySlug fetches one post by slug. With publishedOnly set, drafts are
// reported as not found.
func (s *Store) GetPostBySlug(ctx context.Context, slug string, publishedOnly bool) Result[Post] {
	return run(s, "get post "+slug, func(b Backend) (Post, error) {
		return b.GetPost(ctx, PostQuery{Slug: slug, PublishedOnly: publishedOnly})
	})
}

// GetPostByID fetches one post by id regardless of its published state.
func (s *Store) GetPostByID(ctx context.Context, id string) Result[Post] {
	return run(s, "get post "+id, func(b Backend) (Post, error) {
		return b.GetPost(ctx, PostQuery{ID: id})
	})
}

// NormalizeTags lowercases, trims and de-duplicates tags, dropping empties.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
