package devquote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/devquote/chat"
)

func validEstimate() map[string]any {
	return map[string]any{
		"projectName": "Shop",
		"description": "An online store",
		"timeline":    "3 months",
		"projectType": "ecommerce",
		"features":    []string{"cart", " ", "payments"},
		"complexity":  60,
	}
}

func TestRootJSON(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "devquote", body["name"])
	assert.Equal(t, "running", body["status"])
	assert.Contains(t, body["endpoints"], "POST /api/estimate")
}

func TestRootHTML(t *testing.T) {
	ta := newTestApp(t)
	ta.createPost(t, "Hello World", true)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAccept, "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	ta.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Contains(t, rec.Body.String(), `<a href="http://localhost:3000/blog/hello-world">Hello World</a>`)
	assert.Contains(t, rec.Body.String(), "<code>GET /api/health</code>")
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*fakeChat)
		status int
	}{
		{"ok", func(*fakeChat) {}, http.StatusOK},
		{"not configured", func(f *fakeChat) { f.configured = false }, http.StatusServiceUnavailable},
		{"no models", func(f *fakeChat) { f.models = nil }, http.StatusServiceUnavailable},
		{"listing fails", func(f *fakeChat) { f.modelsErr = errors.New("boom") }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t)
			tt.setup(ta.chat)
			rec := ta.do(http.MethodGet, "/api/health", nil)
			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, true, body["storeEnabled"])
			assert.Equal(t, true, body["geminiConfigured"])
		})
	}
}

func TestEstimateMissingFields(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(http.MethodPost, "/api/estimate", map[string]any{"projectName": "Shop", "timeline": " "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, CodeValidation, body["code"])
	assert.Equal(t, []any{"description", "timeline", "projectType"}, body["required"])
	assert.Empty(t, ta.chat.requests)
}

func TestEstimateComplexityRange(t *testing.T) {
	ta := newTestApp(t)
	req := validEstimate()
	req["complexity"] = 150
	rec := ta.do(http.MethodPost, "/api/estimate", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimate(t *testing.T) {
	ta := newTestApp(t)
	ta.chat.reply = "Price range: 8 000 - 12 000 PLN\nMostly frontend work."

	rec := ta.do(http.MethodPost, "/api/estimate", validEstimate())
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, ta.chat.reply, body["estimation"])
	pr := body["priceRange"].(map[string]any)
	assert.Equal(t, 8000.0, pr["min"])
	assert.Equal(t, 12000.0, pr["max"])
	assert.Equal(t, true, pr["withinBand"])

	require.Len(t, ta.chat.requests, 1)
	assert.Equal(t, []string{"cart", "payments"}, ta.chat.requests[0].Features)

	// No email, nothing captured.
	ta.captures.Wait()
	emails := ta.Store.ListEmails(context.Background(), 10, 0)
	require.NoError(t, emails.Err)
	assert.Empty(t, emails.Value)
}

func TestEstimateCapturesEmail(t *testing.T) {
	ta := newTestApp(t)
	ta.chat.reply = "Around 10 000 - 14 000 PLN"
	req := validEstimate()
	req["email"] = "client@example.com"

	rec := ta.do(http.MethodPost, "/api/estimate", req)
	require.Equal(t, http.StatusOK, rec.Code)

	ta.captures.Wait()
	emails := ta.Store.ListEmails(context.Background(), 10, 0)
	require.NoError(t, emails.Err)
	require.Len(t, emails.Value, 1)
	got := emails.Value[0]
	assert.Equal(t, "client@example.com", got.Email)
	assert.Equal(t, "Shop", got.ProjectName)
	assert.Equal(t, ta.chat.reply, got.Estimation)
}

func TestEstimateSkipsInvalidEmail(t *testing.T) {
	ta := newTestApp(t)
	ta.chat.reply = "ok"
	req := validEstimate()
	req["email"] = "not-an-email"

	rec := ta.do(http.MethodPost, "/api/estimate", req)
	require.Equal(t, http.StatusOK, rec.Code)

	ta.captures.Wait()
	emails := ta.Store.ListEmails(context.Background(), 10, 0)
	require.NoError(t, emails.Err)
	assert.Empty(t, emails.Value)
}

func TestEstimateProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"bad request", errors.BadRequestf("bad"), http.StatusBadRequest, CodeAIBadRequest},
		{"unauthorized", errors.Unauthorizedf("key"), http.StatusUnauthorized, CodeAIAuth},
		{"rate limited", errors.QuotaLimitExceededf("slow down"), http.StatusTooManyRequests, CodeAIRateLimited},
		{"passthrough", &chat.ProviderError{Status: http.StatusServiceUnavailable, Message: "overloaded"}, http.StatusServiceUnavailable, CodeAIProvider},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t)
			ta.chat.err = tt.err
			rec := ta.do(http.MethodPost, "/api/estimate", validEstimate())
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode(t, rec)["code"])
		})
	}
}

func TestCaptureAsyncReportsFailure(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.Store.Close())

	errc := ta.captureAsync("test", recordFor("a@b.c"))
	err, ok := <-errc
	require.True(t, ok)
	assert.Error(t, err)
	_, ok = <-errc
	assert.False(t, ok, "channel is closed after the result")
}

func TestCaptureAsyncSuccess(t *testing.T) {
	ta := newTestApp(t)
	err, ok := <-ta.captureAsync("test", recordFor("a@b.c"))
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestSubscribe(t *testing.T) {
	tests := []struct {
		name   string
		email  string
		status int
		code   string
	}{
		{"missing", "", http.StatusBadRequest, CodeValidation},
		{"no at sign", "someone.example.com", http.StatusBadRequest, CodeInvalidEmail},
		{"valid", " someone@example.com ", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t)
			rec := ta.do(http.MethodPost, "/api/subscribe", map[string]any{"email": tt.email, "projectName": "Shop"})
			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
				return
			}
			assert.Equal(t, true, body["success"])
			emails := ta.Store.ListEmails(context.Background(), 10, 0)
			require.NoError(t, emails.Err)
			require.Len(t, emails.Value, 1)
			assert.Equal(t, "someone@example.com", emails.Value[0].Email)
		})
	}
}

func TestSubscribeStoreDown(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.Store.Close())
	rec := ta.do(http.MethodPost, "/api/subscribe", map[string]any{"email": "a@b.c"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeStoreUnavailable, decode(t, rec)["code"])
}

func TestUnknownRoute(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(http.MethodGet, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, CodeNotFound, body["code"])
	assert.Equal(t, "Route GET /api/nope not found", body["error"])
}

func TestMalformedJSON(t *testing.T) {
	ta := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(`{"email":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ta.Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidation, decode(t, rec)["code"])
}

func TestMetricsEndpoint(t *testing.T) {
	ta := newTestApp(t)
	ta.chat.reply = "ok"
	ta.do(http.MethodPost, "/api/estimate", validEstimate())

	rec := ta.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `devquote_estimates_total{outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "devquote_http_requests_total")
}

func TestCacheControlHeaders(t *testing.T) {
	ta := newTestApp(t)
	tests := []struct {
		path string
		want string
	}{
		{"/api/blog", "public, max-age=60"},
		{"/api/blog/feed.xml", "public, max-age=3600"},
		{"/api/blog/admin/posts", "no-store"},
		{"/api/health", "no-cache"},
	}
	for _, tt := range tests {
		rec := ta.do(http.MethodGet, tt.path, nil)
		assert.Equal(t, tt.want, rec.Header().Get("Cache-Control"), tt.path)
	}
}

func TestCacheControlAdminBlogResponses(t *testing.T) {
	ta := newTestApp(t)

	rec := ta.do(http.MethodGet, "/api/blog?key="+testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))

	rec = ta.do(http.MethodGet, "/api/blog", nil, cookie)
	assert.Equal(t, true, decode(t, rec)["isAdmin"])
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))

	rec = ta.do(http.MethodGet, "/api/blog?key=wrong", nil)
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name   string
		env    string
		origin string
		want   string
	}{
		{"development reflects any origin", "development", "https://good.example", "https://good.example"},
		{"development reflects unknown origin", "development", "https://evil.example", "https://evil.example"},
		{"production allowed origin", "production", "https://good.example", "https://good.example"},
		{"production second allowed origin", "production", "https://admin.example", "https://admin.example"},
		{"production rejects other origins", "production", "https://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, func(c *SiteConfig) {
				c.Env = tt.env
				c.FrontendURL = []string{"https://good.example", "https://admin.example"}
			})
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			req.Header.Set(echo.HeaderOrigin, tt.origin)
			rec := httptest.NewRecorder()
			ta.Echo.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	ta := newTestApp(t, func(c *SiteConfig) {
		c.Env = "production"
		c.FrontendURL = []string{"https://good.example"}
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/estimate", nil)
	req.Header.Set(echo.HeaderOrigin, "https://good.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	ta.Echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://good.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
}
