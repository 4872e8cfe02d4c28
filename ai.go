package devquote

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/devquote/genai"
)

type aiRequest struct {
	Topic          string   `json:"topic"`
	Keywords       []string `json:"keywords"`
	Language       string   `json:"language"`
	Tone           string   `json:"tone"`
	Length         string   `json:"length"`
	Content        string   `json:"content"`
	Instructions   string   `json:"instructions"`
	TargetLanguage string   `json:"targetLanguage"`
}

// aiHandler binds the body, checks the required fields and the assistant,
// then runs op. A false ok from op becomes AI_UNAVAILABLE. An unsupported
// targetLanguage is a 400 rather than an assistant failure.
func (a *App) aiHandler(operation, what string, required func(aiRequest) []field,
	op func(c echo.Context, req aiRequest) (any, bool)) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req aiRequest
		if err := c.Bind(&req); err != nil {
			return err
		}
		if missing := missingFields(required(req)...); len(missing) > 0 {
			return failRequired(c, missing)
		}
		if req.TargetLanguage != "" {
			if _, ok := genai.ParseLanguage(req.TargetLanguage); !ok {
				return fail(c, http.StatusBadRequest, CodeValidation, "targetLanguage must be English (en) or Polish (pl)")
			}
		}
		if !a.Writer.Available() {
			a.counts.aiCalls.WithLabelValues(operation, "unavailable").Inc()
			return failAIUnavailable(c, what)
		}
		body, ok := op(c, req)
		a.counts.aiCalls.WithLabelValues(operation, outcome(ok)).Inc()
		if !ok {
			return failAIUnavailable(c, what)
		}
		return c.JSON(http.StatusOK, body)
	}
}

func contentField(req aiRequest) []field {
	return []field{{"content", req.Content}}
}

func (a *App) handleAIGenerate() echo.HandlerFunc {
	return a.aiHandler("generate", "generate post",
		func(req aiRequest) []field { return []field{{"topic", req.Topic}} },
		func(c echo.Context, req aiRequest) (any, bool) {
			post, ok := a.Writer.GeneratePost(c.Request().Context(), genai.PostRequest{
				Topic:    strings.TrimSpace(req.Topic),
				Keywords: FilterEmpty(req.Keywords),
				Language: req.Language,
				Tone:     req.Tone,
				Length:   req.Length,
			})
			return map[string]any{"post": post}, ok
		})
}

func (a *App) handleAIImprove() echo.HandlerFunc {
	return a.aiHandler("improve", "improve content", contentField,
		func(c echo.Context, req aiRequest) (any, bool) {
			content, ok := a.Writer.ImproveContent(c.Request().Context(), req.Content, strings.TrimSpace(req.Instructions))
			return map[string]any{"content": content}, ok
		})
}

func (a *App) handleAITitle() echo.HandlerFunc {
	return a.aiHandler("title", "generate title", contentField,
		func(c echo.Context, req aiRequest) (any, bool) {
			title, ok := a.Writer.GenerateTitle(c.Request().Context(), req.Content)
			return map[string]any{"title": title}, ok
		})
}

func (a *App) handleAIExcerpt() echo.HandlerFunc {
	return a.aiHandler("excerpt", "generate excerpt", contentField,
		func(c echo.Context, req aiRequest) (any, bool) {
			excerpt, ok := a.Writer.GenerateExcerpt(c.Request().Context(), req.Content)
			return map[string]any{"excerpt": excerpt}, ok
		})
}

func (a *App) handleAITags() echo.HandlerFunc {
	return a.aiHandler("tags", "generate tags", contentField,
		func(c echo.Context, req aiRequest) (any, bool) {
			tags, ok := a.Writer.GenerateTags(c.Request().Context(), req.Content)
			return map[string]any{"tags": tags}, ok
		})
}

func (a *App) handleAITranslate() echo.HandlerFunc {
	return a.aiHandler("translate", "translate content",
		func(req aiRequest) []field {
			return []field{{"content", req.Content}, {"targetLanguage", req.TargetLanguage}}
		},
		func(c echo.Context, req aiRequest) (any, bool) {
			lang, _ := genai.ParseLanguage(req.TargetLanguage)
			content, ok := a.Writer.Translate(c.Request().Context(), req.Content, string(lang))
			return map[string]any{"content": content, "language": lang}, ok
		})
}
