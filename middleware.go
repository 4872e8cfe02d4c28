package devquote

import (
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const imageUploadPath = "/api/blog/admin/images"

func (a *App) setupMiddleware() {
	e := a.Echo

	e.IPExtractor = echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)

	e.HTTPErrorHandler = a.httpErrorHandler

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			// The admin key travels in the query string.
			uri := v.URI
			if i := strings.IndexByte(uri, '?'); i >= 0 && c.QueryParam("key") != "" {
				uri = uri[:i] + "?key=***"
			}
			c.Logger().Infof("%s %s -> %d (%s)", v.Method, uri, v.Status, v.Latency)
			return nil
		},
	}))

	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(a.corsConfig()))

	e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Limit: "1M",
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == imageUploadPath
		},
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' https: data:",
		HSTSMaxAge:            a.hstsMaxAge(),
	}))

	e.Use(session.Middleware(a.newSessionStore()))

	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "devquote",
		Subsystem:  "http",
		Registerer: a.metrics,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	e.Use(cacheControlMiddleware)
}

// corsConfig is permissive outside production; in production only the
// FRONTEND_URL origins are allowed.
func (a *App) corsConfig() middleware.CORSConfig {
	cfg := middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           600,
	}
	if a.Config.Production() {
		cfg.AllowOrigins = a.Config.FrontendURL
	} else {
		cfg.AllowOrigins = []string{"*"}
		cfg.UnsafeWildcardOriginWithAllowCredentials = true
	}
	return cfg
}

func (a *App) hstsMaxAge() int {
	if a.Config.Production() {
		return 31536000
	}
	return 0
}

func cacheControlMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path
		h := c.Response().Header()
		switch {
		case strings.HasPrefix(path, "/uploads/"):
			h.Set("Cache-Control", "public, max-age=31536000, immutable")
		case strings.HasPrefix(path, "/api/blog/admin"), strings.HasPrefix(path, "/api/blog/ai"):
			h.Set("Cache-Control", "no-store")
		case path == "/api/blog/feed.xml" || path == "/api/blog/sitemap.xml":
			h.Set("Cache-Control", "public, max-age=3600")
		case c.Request().Method == http.MethodGet && strings.HasPrefix(path, "/api/blog"):
			h.Set("Cache-Control", "public, max-age=60")
		default:
			h.Set("Cache-Control", "no-cache")
		}
		return next(c)
	}
}

func (a *App) newSessionStore() *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(a.Config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(SessionTTL.Seconds()),
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	if a.Config.CookieSecure && a.Config.Production() {
		// Frontend and API live on different origins in production.
		store.Options.SameSite = http.SameSiteNoneMode
	}
	return store
}
