package devquote

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/eringen/devquote/chat"
	"github.com/eringen/devquote/datastore"
	"github.com/eringen/devquote/genai"
)

// SiteConfig holds all process-wide settings. It is populated once at
// startup and read-only afterwards.
type SiteConfig struct {
	Env     string // APP_ENV; "production" enables the strict checks
	Addr    string // Listen address (default ":3001")
	Version string

	ChatAPIKey      string
	ChatBaseURL     string
	ChatModel       string
	ChatMaxTokens   int
	ChatTemperature float64 // 0 is a valid setting; ConfigFromEnv defaults to 0.7

	GenAIAPIKey  string
	GenAIBaseURL string
	GenAIModel   string

	FrontendURL []string // CORS allow-list in production; first entry is the public site

	AdminSecret   string
	SessionSecret string // random per process when empty
	CookieSecure  bool

	StoreURL    string
	StoreKey    string
	EmailTable  string
	BlogTable   string
	DatabaseURL string
	SQLitePath  string

	UploadDir string
	LogLevel  string

	SiteName        string // RSS channel title
	SiteDescription string

	PostCacheTTL time.Duration // public list cache (default 1min)
}

// Production reports whether the strict production rules apply.
func (c SiteConfig) Production() bool {
	return c.Env == "production"
}

// Tables returns the configured store table names.
func (c SiteConfig) Tables() datastore.Tables {
	return datastore.Tables{Emails: c.EmailTable, Posts: c.BlogTable}
}

// SiteURL is the public frontend origin used for feed and sitemap links.
func (c SiteConfig) SiteURL() string {
	if len(c.FrontendURL) == 0 {
		return "http://localhost:3000"
	}
	return c.FrontendURL[0]
}

func (c *SiteConfig) setDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Addr == "" {
		c.Addr = ":3001"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.ChatBaseURL == "" {
		c.ChatBaseURL = chat.DefaultBaseURL
	}
	if c.ChatModel == "" {
		c.ChatModel = chat.DefaultModel
	}
	if c.ChatMaxTokens <= 0 {
		c.ChatMaxTokens = chat.DefaultMaxTokens
	}
	if c.GenAIBaseURL == "" {
		c.GenAIBaseURL = genai.DefaultBaseURL
	}
	if c.GenAIModel == "" {
		c.GenAIModel = genai.DefaultModel
	}
	if len(c.FrontendURL) == 0 {
		c.FrontendURL = []string{"http://localhost:3000"}
	}
	if c.EmailTable == "" {
		c.EmailTable = "estimations"
	}
	if c.BlogTable == "" {
		c.BlogTable = "blog_posts"
	}
	if c.UploadDir == "" {
		c.UploadDir = "public/uploads"
	}
	if c.LogLevel == "" {
		c.LogLevel = "debug"
		if c.Production() {
			c.LogLevel = "info"
		}
	}
	if c.SiteName == "" {
		c.SiteName = "Blog"
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = time.Minute
	}
}

// ConfigFromEnv reads the process environment. Call godotenv.Load first to
// merge an optional .env file. Malformed numbers are reported as NotValid.
func ConfigFromEnv() (SiteConfig, error) {
	cfg := SiteConfig{
		Env:             strings.ToLower(os.Getenv("APP_ENV")),
		ChatAPIKey:      os.Getenv("OPENAI_API_KEY"),
		ChatBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		ChatModel:       os.Getenv("OPENAI_MODEL"),
		GenAIAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GenAIBaseURL:    os.Getenv("GEMINI_BASE_URL"),
		GenAIModel:      os.Getenv("GEMINI_MODEL"),
		FrontendURL:     splitList(os.Getenv("FRONTEND_URL")),
		AdminSecret:     os.Getenv("ADMIN_SECRET_KEY"),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		StoreURL:        os.Getenv("SUPABASE_URL"),
		StoreKey:        os.Getenv("SUPABASE_KEY"),
		EmailTable:      os.Getenv("SUPABASE_TABLE"),
		BlogTable:       os.Getenv("SUPABASE_BLOG_TABLE"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      os.Getenv("SQLITE_PATH"),
		UploadDir:       os.Getenv("UPLOAD_DIR"),
		LogLevel:        strings.ToLower(os.Getenv("LOG_LEVEL")),
		SiteName:        os.Getenv("SITE_NAME"),
		SiteDescription: os.Getenv("SITE_DESCRIPTION"),
		ChatTemperature: chat.DefaultTemperature,
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Addr = ":" + strings.TrimPrefix(port, ":")
	}

	var problems []string
	if v := os.Getenv("OPENAI_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			problems = append(problems, "OPENAI_MAX_TOKENS must be a positive integer")
		}
		cfg.ChatMaxTokens = n
	}
	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 2 {
			problems = append(problems, "OPENAI_TEMPERATURE must be a number between 0 and 2")
		}
		cfg.ChatTemperature = f
	}
	secure := os.Getenv("COOKIE_SECURE")
	if secure == "" {
		cfg.CookieSecure = cfg.Env == "production"
	} else {
		b, err := strconv.ParseBool(secure)
		if err != nil {
			problems = append(problems, "COOKIE_SECURE must be a boolean")
		}
		cfg.CookieSecure = b
	}

	cfg.setDefaults()
	if len(problems) > 0 {
		return cfg, errors.NewNotValid(nil, strings.Join(problems, "; "))
	}
	return cfg, nil
}

// Validate applies defaults and checks the settings. Missing required keys
// are returned as a NotValid error; degradable gaps come back as warnings.
func (c *SiteConfig) Validate() (warnings []string, err error) {
	c.setDefaults()

	var fatal []string
	if c.ChatAPIKey == "" {
		fatal = append(fatal, "OPENAI_API_KEY is required")
	}
	if c.Production() && (c.StoreURL == "" || c.StoreKey == "") {
		fatal = append(fatal, "SUPABASE_URL and SUPABASE_KEY are required in production")
	}
	if err := c.Tables().Validate(); err != nil {
		fatal = append(fatal, err.Error())
	}

	if c.GenAIAPIKey == "" {
		warnings = append(warnings, "GEMINI_API_KEY is not set; AI writing assistant is unavailable")
	}
	if c.AdminSecret == "" {
		warnings = append(warnings, "ADMIN_SECRET_KEY is not set; admin routes will answer 500")
	}
	if c.SessionSecret == "" {
		c.SessionSecret = randomSecret()
		warnings = append(warnings, "SESSION_SECRET is not set; admin sessions will not survive a restart")
	}
	if c.DatabaseURL == "" && (c.StoreURL == "" || c.StoreKey == "") && c.SQLitePath == "" {
		warnings = append(warnings, "no data store configured; email capture and blog are disabled")
	}

	if len(fatal) > 0 {
		return warnings, errors.NewNotValid(nil, "invalid configuration: "+strings.Join(fatal, "; "))
	}
	return warnings, nil
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b)
}

// splitList splits a comma separated value and drops empty entries.
func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, strings.TrimSuffix(v, "/"))
		}
	}
	return out
}

// Option configures additional App behavior.
type Option func(*App)
