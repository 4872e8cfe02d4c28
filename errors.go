package devquote

import (
	"fmt"
	"net/http"

	"github.com/juju/errors"
	"github.com/labstack/echo/v4"

	"github.com/eringen/devquote/chat"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeAdminNotConfigured  = "ADMIN_NOT_CONFIGURED"
	CodeInvalidAdminKey     = "INVALID_ADMIN_KEY"
	CodeAdminAccessRequired = "ADMIN_ACCESS_REQUIRED"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidEmail        = "INVALID_EMAIL"
	CodeNotFound            = "NOT_FOUND"
	CodePostNotFound        = "POST_NOT_FOUND"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeAIUnavailable       = "AI_UNAVAILABLE"
	CodeAIBadRequest        = "AI_BAD_REQUEST"
	CodeAIAuth              = "AI_AUTH_FAILED"
	CodeAIRateLimited       = "AI_RATE_LIMITED"
	CodeAIProvider          = "AI_PROVIDER_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
)

const aiHint = "check GEMINI_API_KEY and the generative-text provider status"

// apiError is the JSON body of every error response.
type apiError struct {
	Error    string   `json:"error"`
	Code     string   `json:"code"`
	Details  any      `json:"details,omitempty"`
	Required []string `json:"required,omitempty"`
}

func fail(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, apiError{Error: msg, Code: code})
}

func failRequired(c echo.Context, missing []string) error {
	return c.JSON(http.StatusBadRequest, apiError{
		Error:    "Missing required fields",
		Code:     CodeValidation,
		Required: missing,
	})
}

func failAIUnavailable(c echo.Context, what string) error {
	return c.JSON(http.StatusInternalServerError, apiError{
		Error:   fmt.Sprintf("Failed to %s", what),
		Code:    CodeAIUnavailable,
		Details: aiHint,
	})
}

// failProvider maps a chat provider error to its status code.
func failProvider(c echo.Context, err error) error {
	var pe *chat.ProviderError
	switch {
	case errors.Is(err, errors.BadRequest):
		return fail(c, http.StatusBadRequest, CodeAIBadRequest, "The AI provider rejected the request")
	case errors.Is(err, errors.Unauthorized):
		return fail(c, http.StatusUnauthorized, CodeAIAuth, "The AI provider rejected the API key")
	case errors.Is(err, errors.QuotaLimitExceeded):
		return fail(c, http.StatusTooManyRequests, CodeAIRateLimited, "The AI provider is rate limiting requests, try again later")
	case errors.As(err, &pe):
		return c.JSON(pe.Status, apiError{Error: "The AI provider returned an error", Code: CodeAIProvider, Details: pe.Message})
	}
	return errors.Trace(err)
}

// statusFor maps an error to an HTTP status and code.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code, codeForStatus(he.Code)
	case errors.Is(err, errors.NotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, errors.NotValid), errors.Is(err, errors.BadRequest):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, errors.Unauthorized):
		return http.StatusUnauthorized, CodeAdminAccessRequired
	case errors.Is(err, errors.QuotaLimitExceeded):
		return http.StatusTooManyRequests, CodeAIRateLimited
	case errors.Is(err, errors.NotSupported):
		return http.StatusServiceUnavailable, CodeStoreUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return CodeValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeAdminAccessRequired
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	}
	if status >= 500 {
		return CodeInternal
	}
	return "HTTP_ERROR"
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, code := statusFor(err)

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
		if he.Code == http.StatusNotFound {
			msg = fmt.Sprintf("Route %s %s not found", c.Request().Method, c.Request().URL.Path)
		}
	}
	if status >= 500 {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, errors.Details(err))
		if msg == "" {
			msg = http.StatusText(status)
		}
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, apiError{Error: msg, Code: code})
	}
	if err != nil {
		c.Logger().Errorf("write error response: %v", err)
	}
}
