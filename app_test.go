package devquote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/require"

	"github.com/eringen/devquote/chat"
	"github.com/eringen/devquote/datastore"
	"github.com/eringen/devquote/genai"
)

const testSecret = "s3cret"

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetLevel(log.OFF)
	return l
}

type fakeChat struct {
	mu         sync.Mutex
	configured bool
	reply      string
	err        error
	models     []chat.Model
	modelsErr  error
	requests   []chat.EstimateRequest
}

func (f *fakeChat) Configured() bool { return f.configured }

func (f *fakeChat) Estimate(_ context.Context, req chat.EstimateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeChat) ListModels(context.Context) ([]chat.Model, error) {
	return f.models, f.modelsErr
}

type fakeWriter struct {
	available bool
	fail      bool
	calls     []string
}

func (f *fakeWriter) Available() bool { return f.available }

func (f *fakeWriter) record(op string) bool {
	f.calls = append(f.calls, op)
	return !f.fail
}

func (f *fakeWriter) GeneratePost(_ context.Context, req genai.PostRequest) (genai.GeneratedPost, bool) {
	return genai.GeneratedPost{
		Title:   "About " + req.Topic,
		Slug:    datastore.Slugify("About " + req.Topic),
		Content: "# About " + req.Topic,
		Tags:    []string{"go"},
	}, f.record("generate")
}

func (f *fakeWriter) ImproveContent(_ context.Context, content, instructions string) (string, bool) {
	return content + " (improved: " + instructions + ")", f.record("improve")
}

func (f *fakeWriter) GenerateTitle(context.Context, string) (string, bool) {
	return "A Title", f.record("title")
}

func (f *fakeWriter) GenerateExcerpt(context.Context, string) (string, bool) {
	return "An excerpt.", f.record("excerpt")
}

func (f *fakeWriter) GenerateTags(context.Context, string) ([]string, bool) {
	return []string{"go", "echo", "api", "blog", "ai"}, f.record("tags")
}

func (f *fakeWriter) Translate(_ context.Context, content, target string) (string, bool) {
	return "[" + target + "] " + content, f.record("translate:" + target)
}

type testApp struct {
	*App
	clock  *testclock.Clock
	chat   *fakeChat
	writer *fakeWriter
}

// newTestApp builds an App on a fresh SQLite database with fake providers.
// mutate can adjust the config before the App is set up.
func newTestApp(t *testing.T, mutate ...func(*SiteConfig)) *testApp {
	t.Helper()
	dir := t.TempDir()
	cfg := SiteConfig{
		AdminSecret:   testSecret,
		SessionSecret: "test-session-secret-0123456789abcdef",
		UploadDir:     filepath.Join(dir, "uploads"),
		LogLevel:      "off",
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	backend, err := datastore.OpenSQLite(filepath.Join(dir, "test.db"), datastore.Tables{Emails: "estimations", Posts: "blog_posts"})
	require.NoError(t, err)

	ta := &testApp{
		clock:  testclock.NewClock(testEpoch),
		chat:   &fakeChat{configured: true, models: []chat.Model{{ID: "gpt-4o-mini"}}},
		writer: &fakeWriter{available: true},
	}
	ta.App = New(cfg,
		WithStore(datastore.NewStore(backend, quietLogger())),
		WithChat(ta.chat),
		WithWriter(ta.writer),
		WithClock(ta.clock),
		WithLogger(quietLogger()),
	)
	require.NoError(t, ta.Setup(context.Background()))
	t.Cleanup(func() {
		ta.captures.Wait()
		ta.Store.Close()
	})
	return ta
}

func (ta *testApp) do(method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ta.Echo.ServeHTTP(rec, req)
	return rec
}

// createPost stores a post directly, bypassing the admin routes.
func (ta *testApp) createPost(t *testing.T, title string, published bool, tags ...string) datastore.Post {
	t.Helper()
	res := ta.Store.CreatePost(context.Background(), datastore.Post{
		Title:     title,
		Slug:      datastore.Slugify(title),
		Content:   "Body of **" + title + "**",
		Excerpt:   "About " + title,
		Published: published,
		Tags:      tags,
	})
	require.NoError(t, res.Err)
	return res.Value
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionName {
			return c
		}
	}
	return nil
}

func recordFor(email string) datastore.EmailRecord {
	return datastore.EmailRecord{Email: email, ProjectName: "Shop", ProjectType: "ecommerce"}
}
