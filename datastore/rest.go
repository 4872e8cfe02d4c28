package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"golang.org/x/oauth2"
)

// REST is a Backend for the hosted store's PostgREST interface
// (<project>.supabase.co/rest/v1).
type REST struct {
	baseURL    string
	key        string
	tables     Tables
	httpClient *http.Client
}

// NewREST creates a REST backend. The service key is sent both as the
// apikey header and as a bearer token.
func NewREST(ctx context.Context, projectURL, key string, tables Tables) (*REST, error) {
	if err := tables.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	u, err := url.Parse(strings.TrimSuffix(projectURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.NotValidf("store URL %q", projectURL)
	}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: key, TokenType: "Bearer"}))
	hc.Timeout = 15 * time.Second
	return &REST{
		baseURL:    u.String() + "/rest/v1",
		key:        key,
		tables:     tables,
		httpClient: hc,
	}, nil
}

// Close is a no-op; the HTTP client holds no resources worth releasing.
func (r *REST) Close() error { return nil }

type restCall struct {
	method string
	table  string
	query  url.Values
	body   any
	prefer []string
}

func (r *REST) do(ctx context.Context, call restCall, out any) (http.Header, error) {
	endpoint := r.baseURL + "/" + call.table
	if len(call.query) > 0 {
		endpoint += "?" + call.query.Encode()
	}

	var body io.Reader
	if call.body != nil {
		b, err := json.Marshal(call.body)
		if err != nil {
			return nil, errors.Annotate(err, "marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, endpoint, body)
	if err != nil {
		return nil, errors.Annotate(err, "create request")
	}
	req.Header.Set("apikey", r.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(call.prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(call.prefer, ","))
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errors.Annotate(err, "store request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Annotate(err, "read response body")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, errors.NotValidf("store rejected %s %s (%d): %s", call.method, call.table, resp.StatusCode, data)
	default:
		return nil, errors.Errorf("store error %d on %s %s: %s", resp.StatusCode, call.method, call.table, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, errors.Annotate(err, "decode store response")
		}
	}
	return resp.Header, nil
}

// Ping reads at most one row from the posts table.
func (r *REST) Ping(ctx context.Context) error {
	_, err := r.do(ctx, restCall{
		method: http.MethodGet,
		table:  r.tables.Posts,
		query:  url.Values{"select": {"id"}, "limit": {"1"}},
	}, nil)
	return err
}

// InsertEmail posts rec and returns the stored representation.
func (r *REST) InsertEmail(ctx context.Context, rec EmailRecord) (EmailRecord, error) {
	var rows []EmailRecord
	_, err := r.do(ctx, restCall{
		method: http.MethodPost,
		table:  r.tables.Emails,
		body:   []EmailRecord{rec},
		prefer: []string{"return=representation"},
	}, &rows)
	if err != nil {
		return EmailRecord{}, err
	}
	if len(rows) == 0 {
		return rec, nil
	}
	return rows[0], nil
}

// ListEmails returns captured emails, newest first.
func (r *REST) ListEmails(ctx context.Context, limit, offset int) ([]EmailRecord, error) {
	rows := []EmailRecord{}
	_, err := r.do(ctx, restCall{
		method: http.MethodGet,
		table:  r.tables.Emails,
		query: url.Values{
			"select": {"*"},
			"order":  {"created_at.desc"},
			"limit":  {strconv.Itoa(limit)},
			"offset": {strconv.Itoa(offset)},
		},
	}, &rows)
	return rows, err
}

// CreatePost inserts p; the store assigns the id.
func (r *REST) CreatePost(ctx context.Context, p Post) (Post, error) {
	p.ID = ""
	p.Tags = NormalizeTags(p.Tags)
	var rows []Post
	_, err := r.do(ctx, restCall{
		method: http.MethodPost,
		table:  r.tables.Posts,
		body:   p,
		prefer: []string{"return=representation"},
	}, &rows)
	if err != nil {
		return Post{}, err
	}
	if len(rows) == 0 {
		return Post{}, errors.Errorf("store returned no row for created post")
	}
	return rows[0], nil
}

// UpdatePost patches the row with the given id.
func (r *REST) UpdatePost(ctx context.Context, id string, patch PostPatch) (Post, error) {
	if patch.Tags != nil {
		tags := NormalizeTags(*patch.Tags)
		patch.Tags = &tags
	}
	var rows []Post
	_, err := r.do(ctx, restCall{
		method: http.MethodPatch,
		table:  r.tables.Posts,
		query:  url.Values{"id": {"eq." + id}},
		body:   patch,
		prefer: []string{"return=representation"},
	}, &rows)
	if err != nil {
		return Post{}, err
	}
	if len(rows) == 0 {
		return Post{}, errors.NotFoundf("post %q", id)
	}
	return rows[0], nil
}

// DeletePost deletes the row with the given id.
func (r *REST) DeletePost(ctx context.Context, id string) (Post, error) {
	var rows []Post
	_, err := r.do(ctx, restCall{
		method: http.MethodDelete,
		table:  r.tables.Posts,
		query:  url.Values{"id": {"eq." + id}},
		prefer: []string{"return=representation"},
	}, &rows)
	if err != nil {
		return Post{}, err
	}
	if len(rows) == 0 {
		return Post{}, errors.NotFoundf("post %q", id)
	}
	return rows[0], nil
}

// ListPosts fetches one page; the total comes from the Content-Range header.
func (r *REST) ListPosts(ctx context.Context, opts ListOptions) (Page, error) {
	q := url.Values{
		"select": {"*"},
		"order":  {"created_at.desc"},
		"limit":  {strconv.Itoa(opts.Limit)},
		"offset": {strconv.Itoa(opts.Offset)},
	}
	if opts.PublishedOnly {
		q.Set("published", "eq.true")
	}
	if opts.Tag != "" {
		q.Set("tags", fmt.Sprintf("cs.{%q}", opts.Tag))
	}
	page := Page{Posts: []Post{}}
	header, err := r.do(ctx, restCall{
		method: http.MethodGet,
		table:  r.tables.Posts,
		query:  q,
		prefer: []string{"count=exact"},
	}, &page.Posts)
	if err != nil {
		return Page{}, err
	}
	page.Total = parseContentRangeTotal(header.Get("Content-Range"), len(page.Posts))
	return page, nil
}

// GetPost fetches one post by id or slug.
func (r *REST) GetPost(ctx context.Context, q PostQuery) (Post, error) {
	query := url.Values{"select": {"*"}, "limit": {"1"}, "order": {"created_at.desc"}}
	val := q.Slug
	if q.ID != "" {
		val = q.ID
		query.Set("id", "eq."+q.ID)
	} else {
		query.Set("slug", "eq."+q.Slug)
	}
	if q.PublishedOnly {
		query.Set("published", "eq.true")
	}
	var rows []Post
	if _, err := r.do(ctx, restCall{method: http.MethodGet, table: r.tables.Posts, query: query}, &rows); err != nil {
		return Post{}, err
	}
	if len(rows) == 0 {
		return Post{}, errors.NotFoundf("post %q", val)
	}
	return rows[0], nil
}

// parseContentRangeTotal reads the total from "0-9/42" or "*/0".
func parseContentRangeTotal(header string, fallback int) int {
	i := strings.LastIndex(header, "/")
	if i < 0 {
		return fallback
	}
	n, err := strconv.Atoi(header[i+1:])
	if err != nil {
		return fallback
	}
	return n
}
