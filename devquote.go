// Package devquote is the backend of a software studio website: AI-assisted
// project cost estimation, email capture, and a blog with an AI writing
// assistant. It proxies a chat-completion API, a generative-text API and a
// hosted data store behind one Echo server.
package devquote

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eringen/devquote/chat"
	"github.com/eringen/devquote/datastore"
	"github.com/eringen/devquote/genai"
)

// ChatProvider produces cost estimates. *chat.Client implements it.
type ChatProvider interface {
	Configured() bool
	Estimate(ctx context.Context, req chat.EstimateRequest) (string, error)
	ListModels(ctx context.Context) ([]chat.Model, error)
}

// WritingAssistant backs the blog AI routes. *genai.Client implements it.
type WritingAssistant interface {
	Available() bool
	GeneratePost(ctx context.Context, req genai.PostRequest) (genai.GeneratedPost, bool)
	ImproveContent(ctx context.Context, content, instructions string) (string, bool)
	GenerateTitle(ctx context.Context, content string) (string, bool)
	GenerateExcerpt(ctx context.Context, content string) (string, bool)
	GenerateTags(ctx context.Context, content string) ([]string, bool)
	Translate(ctx context.Context, content, target string) (string, bool)
}

// App is the central application. It wires the adapters, middleware and
// handlers onto one Echo instance.
type App struct {
	Config SiteConfig
	Echo   *echo.Echo
	Store  *datastore.Store
	Cache  *PostCache
	Chat   ChatProvider
	Writer WritingAssistant

	logger  *log.Logger
	clock   clock.Clock
	metrics *prometheus.Registry
	counts  *counters

	captures sync.WaitGroup
	setup    sync.Once
	setupErr error
}

// New creates an App. Adapters not supplied through options are built from
// cfg when the App is set up.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()
	a := &App{
		Config:  cfg,
		Echo:    echo.New(),
		clock:   clock.WallClock,
		metrics: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = NewLogger("devquote", cfg.LogLevel)
	}
	a.Echo.HideBanner = true
	a.Echo.Logger = a.logger
	return a
}

// WithStore uses s instead of opening the configured backend.
func WithStore(s *datastore.Store) Option {
	return func(a *App) { a.Store = s }
}

// WithChat uses p as the estimation provider.
func WithChat(p ChatProvider) Option {
	return func(a *App) { a.Chat = p }
}

// WithWriter uses w as the blog writing assistant.
func WithWriter(w WritingAssistant) Option {
	return func(a *App) { a.Writer = w }
}

// WithClock sets the clock used for admin session expiry.
func WithClock(clk clock.Clock) Option {
	return func(a *App) { a.clock = clk }
}

// WithLogger sets the application logger.
func WithLogger(l *log.Logger) Option {
	return func(a *App) { a.logger = l }
}

// Logger returns the application logger.
func (a *App) Logger() *log.Logger {
	return a.logger
}

// Setup builds missing adapters and registers middleware and routes. It is
// safe to call more than once; Start calls it.
func (a *App) Setup(ctx context.Context) error {
	a.setup.Do(func() {
		a.setupErr = a.init(ctx)
	})
	return a.setupErr
}

func (a *App) init(ctx context.Context) error {
	if a.Config.SessionSecret == "" {
		a.Config.SessionSecret = randomSecret()
	}
	if a.Store == nil {
		store, err := a.openStore(ctx)
		if err != nil {
			return errors.Annotate(err, "init store")
		}
		a.Store = store
	}
	if a.Chat == nil {
		a.Chat = chat.NewClient(ctx, chat.Config{
			APIKey:      a.Config.ChatAPIKey,
			BaseURL:     a.Config.ChatBaseURL,
			Model:       a.Config.ChatModel,
			MaxTokens:   a.Config.ChatMaxTokens,
			Temperature: a.Config.ChatTemperature,
		})
	}
	if a.Writer == nil {
		a.Writer = genai.New(genai.Config{
			APIKey:  a.Config.GenAIAPIKey,
			BaseURL: a.Config.GenAIBaseURL,
			Model:   a.Config.GenAIModel,
		}, a.logger)
	}
	a.Cache = NewPostCache(a.Store, a.Config.PostCacheTTL, a.clock)

	counts, err := newCounters(a.metrics)
	if err != nil {
		return errors.Annotate(err, "register metrics")
	}
	a.counts = counts

	a.setupMiddleware()
	a.setupRoutes()
	return nil
}

// openStore picks the backend: DATABASE_URL, then the hosted REST API,
// then a local SQLite file. With none configured the store is disabled.
func (a *App) openStore(ctx context.Context) (*datastore.Store, error) {
	tables := a.Config.Tables()
	switch {
	case a.Config.DatabaseURL != "":
		db, err := datastore.ConnectPostgres(ctx, a.Config.DatabaseURL, tables)
		if err != nil {
			return nil, errors.Trace(err)
		}
		a.logger.Infof("data store: postgres")
		return datastore.NewStore(db, a.logger), nil
	case a.Config.StoreURL != "" && a.Config.StoreKey != "":
		rest, err := datastore.NewREST(ctx, a.Config.StoreURL, a.Config.StoreKey, tables)
		if err != nil {
			return nil, errors.Trace(err)
		}
		a.logger.Infof("data store: REST %s", a.Config.StoreURL)
		return datastore.NewStore(rest, a.logger), nil
	case a.Config.SQLitePath != "":
		db, err := datastore.OpenSQLite(a.Config.SQLitePath, tables)
		if err != nil {
			return nil, errors.Trace(err)
		}
		a.logger.Infof("data store: sqlite %s", a.Config.SQLitePath)
		return datastore.NewStore(db, a.logger), nil
	}
	a.logger.Warnf("data store: none configured, email capture and blog are disabled")
	return datastore.NewStore(nil, a.logger), nil
}

// Start sets the app up and serves until the server is shut down.
func (a *App) Start(ctx context.Context) error {
	if err := a.Setup(ctx); err != nil {
		return err
	}
	a.logger.Infof("listening on %s (%s)", a.Config.Addr, a.Config.Env)
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}
	return nil
}

// Shutdown stops the server, waits for pending email captures and closes
// the store.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		a.captures.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warnf("shutdown: gave up waiting for email captures")
	}

	if a.Store != nil {
		if cerr := a.Store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// captureTimeout bounds a detached email capture independently of the
// request that triggered it.
const captureTimeout = 10 * time.Second
