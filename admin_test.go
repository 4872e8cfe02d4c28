package devquote

import (
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		target string
		status int
		code   string
	}{
		{"not configured", "", "/api/blog/admin/posts?key=anything", http.StatusInternalServerError, CodeAdminNotConfigured},
		{"wrong key", testSecret, "/api/blog/admin/posts?key=wrong", http.StatusUnauthorized, CodeInvalidAdminKey},
		{"no key or session", testSecret, "/api/blog/admin/posts", http.StatusUnauthorized, CodeAdminAccessRequired},
		{"valid key", testSecret, "/api/blog/admin/posts?key=" + testSecret, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t, func(c *SiteConfig) { c.AdminSecret = tt.secret })
			rec := ta.do(http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
				assert.Nil(t, sessionCookie(rec))
				return
			}
			assert.NotNil(t, sessionCookie(rec), "a valid key grants a session")
		})
	}
}

func TestAdminSessionReuseAndExpiry(t *testing.T) {
	ta := newTestApp(t)

	rec := ta.do(http.MethodGet, "/api/blog/admin/session?key="+testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, testEpoch.Add(SessionTTL).Format(time.RFC3339), decode(t, rec)["expiresAt"])

	// The cookie alone is enough within the TTL.
	ta.clock.Advance(SessionTTL - time.Minute)
	rec = ta.do(http.MethodGet, "/api/blog/admin/posts", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Past the TTL the session is cleared and access is refused.
	ta.clock.Advance(time.Minute)
	rec = ta.do(http.MethodGet, "/api/blog/admin/posts", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeAdminAccessRequired, decode(t, rec)["code"])
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestAdminSessionRevokedBySecretChange(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(http.MethodGet, "/api/blog/admin/posts?key="+testSecret, nil)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)

	ta.Config.AdminSecret = "rotated"
	rec = ta.do(http.MethodGet, "/api/blog/admin/posts", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// cookiePayload returns the serialized session values inside a signed
// session cookie.
func cookiePayload(t *testing.T, cookie *http.Cookie) []byte {
	t.Helper()
	outer, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(cookie.Value, "="))
	require.NoError(t, err)
	parts := strings.SplitN(string(outer), "|", 3)
	require.Len(t, parts, 3)
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	require.NoError(t, err)
	return payload
}

func TestAdminSessionCookieHidesSecret(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(http.MethodGet, "/api/blog/admin/session?key="+testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)

	payload := cookiePayload(t, cookie)
	assert.NotContains(t, string(payload), testSecret)
	assert.Contains(t, string(payload), ta.adminDigest())
}

func TestAdminDigestDependsOnSessionSecret(t *testing.T) {
	ta := newTestApp(t)
	first := ta.adminDigest()
	ta.Config.SessionSecret = "another-session-secret"
	assert.NotEqual(t, first, ta.adminDigest())
}

func TestAdminSessionForgedCookie(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(http.MethodGet, "/api/blog/admin/posts", nil, &http.Cookie{Name: sessionName, Value: "forged"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminLogout(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(http.MethodGet, "/api/blog/admin/session?key="+testSecret, nil)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)

	rec = ta.do(http.MethodPost, "/api/blog/admin/logout", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestOptionalAdmin(t *testing.T) {
	ta := newTestApp(t)

	rec := ta.do(http.MethodGet, "/api/blog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["isAdmin"])

	rec = ta.do(http.MethodGet, "/api/blog?key=wrong", nil)
	require.Equal(t, http.StatusOK, rec.Code, "optional admin never rejects")
	assert.Equal(t, false, decode(t, rec)["isAdmin"])

	rec = ta.do(http.MethodGet, "/api/blog?key="+testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["isAdmin"])
}

func TestSecretsEqual(t *testing.T) {
	assert.True(t, secretsEqual("abc", "abc"))
	assert.False(t, secretsEqual("abc", "abd"))
	assert.False(t, secretsEqual("abc", "abcd"))
	assert.False(t, secretsEqual("", "abc"))
}
