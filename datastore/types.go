// Package datastore is the adapter between devquote and the hosted relational
// store that keeps captured emails and blog posts.
//
// Every Store operation returns a Result instead of a bare error: callers can
// tell "row not found" apart from "store unavailable" without caring which
// backend (PostgREST, Postgres or SQLite) is actually serving the data.
package datastore

import (
	"time"

	"github.com/juju/errors"
)

// DefaultAuthor is assigned to posts created without an explicit author.
const DefaultAuthor = "Admin"

// Post is a blog post row. JSON names follow the hosted table's columns.
type Post struct {
	ID            string    `json:"id,omitempty"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Content       string    `json:"content"`
	Excerpt       string    `json:"excerpt"`
	FeaturedImage string    `json:"featured_image"`
	Author        string    `json:"author"`
	Published     bool      `json:"published"`
	Tags          []string  `json:"tags"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PostPatch is a partial update. Nil fields are left untouched.
type PostPatch struct {
	Title         *string   `json:"title,omitempty"`
	Slug          *string   `json:"slug,omitempty"`
	Content       *string   `json:"content,omitempty"`
	Excerpt       *string   `json:"excerpt,omitempty"`
	FeaturedImage *string   `json:"featured_image,omitempty"`
	Author        *string   `json:"author,omitempty"`
	Published     *bool     `json:"published,omitempty"`
	Tags          *[]string `json:"tags,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Empty reports whether the patch carries no field changes.
func (p PostPatch) Empty() bool {
	return p.Title == nil && p.Slug == nil && p.Content == nil && p.Excerpt == nil &&
		p.FeaturedImage == nil && p.Author == nil && p.Published == nil && p.Tags == nil
}

// EmailRecord is a captured email, optionally tied to an estimation.
type EmailRecord struct {
	ID          string    `json:"id,omitempty"`
	Email       string    `json:"email"`
	ProjectName string    `json:"project_name"`
	ProjectType string    `json:"project_type"`
	Features    []string  `json:"features"`
	Complexity  int       `json:"complexity"`
	Estimation  string    `json:"estimation,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListOptions controls pagination and filtering of post listings.
type ListOptions struct {
	Limit         int
	Offset        int
	PublishedOnly bool
	Tag           string
}

// PostQuery selects a single post by ID or slug.
type PostQuery struct {
	ID            string
	Slug          string
	PublishedOnly bool
}

// Page is one page of a post listing. Total counts every matching row.
type Page struct {
	Posts []Post `json:"posts"`
	Total int    `json:"total"`
}

// ErrUnavailable marks failures where the store could not be reached or is
// not configured, as opposed to a missing row.
const ErrUnavailable = errors.ConstError("data store unavailable")

type unavailableError struct {
	err error
}

func (e *unavailableError) Error() string { return e.err.Error() }

func (e *unavailableError) Unwrap() error { return e.err }

func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }

func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return &unavailableError{err: err}
}

// Result carries either a value or the reason the operation failed.
type Result[T any] struct {
	Value T
	Err   error
}

// OK reports whether the operation succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// NotFound reports whether the requested row does not exist.
func (r Result[T]) NotFound() bool { return errors.Is(r.Err, errors.NotFound) }

// Invalid reports whether the store rejected the input.
func (r Result[T]) Invalid() bool { return errors.Is(r.Err, errors.NotValid) }

// Unavailable reports whether the store was disabled or unreachable.
func (r Result[T]) Unavailable() bool { return errors.Is(r.Err, ErrUnavailable) }
