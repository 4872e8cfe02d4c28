package devquote

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	sessionName       = "admin_session"
	sessionDigest     = "admin_digest"
	sessionExpiry     = "admin_expires"
	isAdminContextKey = "isAdmin"

	// SessionTTL is how long a granted admin session stays valid.
	SessionTTL = 24 * time.Hour
)

type gateOutcome int

const (
	gateNoAuth gateOutcome = iota
	gateGranted
	gateNotConfigured
	gateInvalidKey
)

// checkAdmin runs the admin gate for one request. A matching ?key= grants
// a fresh session; an expired session is cleared. The session holds an
// HMAC of the admin secret, never the secret itself, so rotating
// ADMIN_SECRET_KEY or SESSION_SECRET revokes every session.
func (a *App) checkAdmin(c echo.Context) (gateOutcome, error) {
	secret := a.Config.AdminSecret
	if secret == "" {
		return gateNotConfigured, nil
	}

	if key := c.QueryParam("key"); key != "" {
		if !secretsEqual(key, secret) {
			return gateInvalidKey, nil
		}
		return gateGranted, a.grantSession(c)
	}

	sess, err := session.Get(sessionName, c)
	if err != nil || sess == nil {
		// An undecodable cookie (e.g. rotated SESSION_SECRET) is no session.
		return gateNoAuth, nil
	}
	stored, ok := sess.Values[sessionDigest].(string)
	if !ok || stored == "" {
		return gateNoAuth, nil
	}
	expires, _ := sess.Values[sessionExpiry].(int64)
	if !a.clock.Now().Before(time.Unix(expires, 0)) {
		return gateNoAuth, clearSession(c, sess)
	}
	if !secretsEqual(stored, a.adminDigest()) {
		return gateNoAuth, nil
	}
	return gateGranted, nil
}

// RequireAdmin rejects requests that do not pass the admin gate.
func (a *App) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		outcome, err := a.checkAdmin(c)
		if err != nil {
			return err
		}
		switch outcome {
		case gateNotConfigured:
			return fail(c, http.StatusInternalServerError, CodeAdminNotConfigured, "Admin access is not configured")
		case gateInvalidKey:
			return fail(c, http.StatusUnauthorized, CodeInvalidAdminKey, "Invalid admin key")
		case gateNoAuth:
			return fail(c, http.StatusUnauthorized, CodeAdminAccessRequired, "Admin access required")
		}
		c.Set(isAdminContextKey, true)
		return next(c)
	}
}

// OptionalAdmin runs the same checks as RequireAdmin but never rejects;
// it only records the outcome for IsAdmin.
func (a *App) OptionalAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		outcome, err := a.checkAdmin(c)
		if err != nil {
			c.Logger().Warnf("admin session: %v", err)
		}
		if outcome == gateGranted || c.QueryParam("key") != "" {
			// Per-caller response, possibly carrying a session cookie.
			c.Response().Header().Set("Cache-Control", "private, no-store")
		}
		c.Set(isAdminContextKey, outcome == gateGranted)
		return next(c)
	}
}

// IsAdmin reports whether the admin gate granted access for this request.
func IsAdmin(c echo.Context) bool {
	ok, _ := c.Get(isAdminContextKey).(bool)
	return ok
}

// adminDigest is the session token for the configured admin secret.
func (a *App) adminDigest() string {
	mac := hmac.New(sha256.New, []byte(a.Config.SessionSecret))
	mac.Write([]byte(a.Config.AdminSecret))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *App) grantSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if sess == nil {
		return err
	}
	sess.Values[sessionDigest] = a.adminDigest()
	sess.Values[sessionExpiry] = a.clock.Now().Add(SessionTTL).Unix()
	return sess.Save(c.Request(), c.Response())
}

func clearSession(c echo.Context, sess *sessions.Session) error {
	delete(sess.Values, sessionDigest)
	delete(sess.Values, sessionExpiry)
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

func secretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (a *App) handleAdminSession(c echo.Context) error {
	resp := map[string]any{"authenticated": true}
	if sess, err := session.Get(sessionName, c); err == nil {
		if exp, ok := sess.Values[sessionExpiry].(int64); ok {
			resp["expiresAt"] = time.Unix(exp, 0).UTC().Format(time.RFC3339)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (a *App) handleAdminLogout(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if sess != nil {
		err = clearSession(c, sess)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
