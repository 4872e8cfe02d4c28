package devquote

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/eringen/devquote/chat"
	"github.com/eringen/devquote/datastore"
	"github.com/eringen/devquote/views"
)

const healthTimeout = 10 * time.Second

func (a *App) handleRoot(c echo.Context) error {
	info := views.ServiceInfo{
		Name:             "devquote",
		Version:          a.Config.Version,
		Environment:      a.Config.Env,
		SiteURL:          a.Config.SiteURL(),
		ChatConfigured:   a.Chat.Configured(),
		WriterConfigured: a.Writer.Available(),
		StoreEnabled:     a.Store.Enabled(),
		Endpoints:        a.endpoints(),
	}
	if !strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML) {
		return c.JSON(http.StatusOK, map[string]any{
			"name":      info.Name,
			"version":   info.Version,
			"status":    "running",
			"endpoints": info.Endpoints,
		})
	}
	if info.StoreEnabled {
		if res := a.Cache.ListPublished(c.Request().Context(), datastore.ListOptions{Limit: 3}); res.OK() {
			info.Latest = res.Value.Posts
		}
	}
	return renderHTML(c, http.StatusOK, views.Landing(info))
}

func (a *App) endpoints() []string {
	var out []string
	for _, r := range a.Echo.Routes() {
		if strings.HasPrefix(r.Path, "/api/") {
			out = append(out, r.Method+" "+r.Path)
		}
	}
	sort.Strings(out)
	return out
}

// renderHTML writes a templ component with the given status.
func renderHTML(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

func (a *App) handleHealth(c echo.Context) error {
	resp := map[string]any{
		"status":           "ok",
		"openaiConfigured": a.Chat.Configured(),
		"geminiConfigured": a.Writer.Available(),
		"storeEnabled":     a.Store.Enabled(),
		"timestamp":        a.clock.Now().UTC().Format(time.RFC3339),
	}
	if !a.Chat.Configured() {
		resp["status"] = "error"
		resp["error"] = "OPENAI_API_KEY is not configured"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()
	if a.Store.Enabled() {
		resp["storeReachable"] = a.Store.Ping(ctx) == nil
	}
	models, err := a.Chat.ListModels(ctx)
	if err != nil || len(models) == 0 {
		c.Logger().Warnf("health: model listing failed: %v", err)
		resp["status"] = "error"
		resp["error"] = "chat provider returned no models"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	resp["models"] = len(models)
	return c.JSON(http.StatusOK, resp)
}

type estimateRequest struct {
	ProjectName string   `json:"projectName"`
	Description string   `json:"description"`
	Timeline    string   `json:"timeline"`
	Features    []string `json:"features"`
	ProjectType string   `json:"projectType"`
	Complexity  int      `json:"complexity"`
	Email       string   `json:"email"`
}

type estimateResponse struct {
	Estimation string           `json:"estimation"`
	PriceRange *chat.PriceRange `json:"priceRange,omitempty"`
}

func (a *App) handleEstimate(c echo.Context) error {
	var req estimateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if missing := missingFields(
		field{"projectName", req.ProjectName},
		field{"description", req.Description},
		field{"timeline", req.Timeline},
		field{"projectType", req.ProjectType},
	); len(missing) > 0 {
		return failRequired(c, missing)
	}
	if req.Complexity < 0 || req.Complexity > 100 {
		return fail(c, http.StatusBadRequest, CodeValidation, "complexity must be between 0 and 100")
	}

	estimation, err := a.Chat.Estimate(c.Request().Context(), chat.EstimateRequest{
		ProjectName: strings.TrimSpace(req.ProjectName),
		Description: strings.TrimSpace(req.Description),
		Timeline:    strings.TrimSpace(req.Timeline),
		ProjectType: strings.TrimSpace(req.ProjectType),
		Features:    FilterEmpty(req.Features),
		Complexity:  req.Complexity,
	})
	if err != nil {
		a.counts.estimates.WithLabelValues("failed").Inc()
		c.Logger().Errorf("estimate %q: %v", req.ProjectName, err)
		return failProvider(c, err)
	}
	a.counts.estimates.WithLabelValues("ok").Inc()

	resp := estimateResponse{Estimation: estimation}
	if pr, ok := chat.ParsePriceRange(estimation); ok {
		resp.PriceRange = &pr
		if !pr.WithinBand {
			c.Logger().Warnf("estimate %q: price range %d-%d outside the %d-%d band",
				req.ProjectName, pr.Min, pr.Max, chat.BandMin, chat.BandMax)
		}
	}

	if email := strings.TrimSpace(req.Email); strings.Contains(email, "@") {
		a.captureAsync("estimate", datastore.EmailRecord{
			Email:       email,
			ProjectName: req.ProjectName,
			ProjectType: req.ProjectType,
			Features:    FilterEmpty(req.Features),
			Complexity:  req.Complexity,
			Estimation:  estimation,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// captureAsync stores rec on a detached goroutine bounded by its own
// timeout. The returned channel yields the failure, if any, and is closed
// when the write finishes; the request path never waits on it.
func (a *App) captureAsync(source string, rec datastore.EmailRecord) <-chan error {
	errc := make(chan error, 1)
	a.captures.Add(1)
	go func() {
		defer a.captures.Done()
		defer close(errc)

		ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
		defer cancel()
		res := a.Store.InsertEmail(ctx, rec)
		a.counts.captures.WithLabelValues(source, outcome(res.OK())).Inc()
		if !res.OK() {
			a.logger.Warnf("email capture (%s) for %s failed: %v", source, rec.Email, res.Err)
			errc <- res.Err
			return
		}
		a.logger.Infof("email capture (%s) stored for %s", source, rec.Email)
	}()
	return errc
}

type subscribeRequest struct {
	Email       string   `json:"email"`
	ProjectName string   `json:"projectName"`
	ProjectType string   `json:"projectType"`
	Features    []string `json:"features"`
	Complexity  int      `json:"complexity"`
	Estimation  string   `json:"estimation"`
}

func (a *App) handleSubscribe(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return failRequired(c, []string{"email"})
	}
	if !strings.Contains(email, "@") {
		return fail(c, http.StatusBadRequest, CodeInvalidEmail, "A valid email address is required")
	}

	res := a.Store.InsertEmail(c.Request().Context(), datastore.EmailRecord{
		Email:       email,
		ProjectName: req.ProjectName,
		ProjectType: req.ProjectType,
		Features:    FilterEmpty(req.Features),
		Complexity:  req.Complexity,
		Estimation:  req.Estimation,
	})
	a.counts.captures.WithLabelValues("subscribe", outcome(res.OK())).Inc()
	if !res.OK() {
		return fail(c, http.StatusInternalServerError, CodeStoreUnavailable, "Failed to save email")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "Email saved"})
}
