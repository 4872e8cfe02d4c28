package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(context.Background(), Config{APIKey: "sk-test", BaseURL: srv.URL + "/"})
}

func TestEstimate(t *testing.T) {
	var got completionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Price range: 8 000 - 12 000 PLN\nDetails  "}}]}`))
	})

	out, err := c.Estimate(context.Background(), EstimateRequest{
		ProjectName: "Shop",
		Description: "An online store",
		Timeline:    "3 months",
		ProjectType: "ecommerce",
		Features:    []string{"cart", "payments"},
		Complexity:  60,
	})
	require.NoError(t, err)
	assert.Equal(t, "  Price range: 8 000 - 12 000 PLN\nDetails  ", out, "returned verbatim")

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "6000")
	assert.Contains(t, got.Messages[0].Content, "34000")
	assert.Contains(t, got.Messages[1].Content, "cart, payments")
	assert.Contains(t, got.Messages[1].Content, "60%")
}

func TestEstimateErrorCategories(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"bad request", http.StatusBadRequest, func(err error) bool { return errors.Is(err, errors.BadRequest) }},
		{"unauthorized", http.StatusUnauthorized, func(err error) bool { return errors.Is(err, errors.Unauthorized) }},
		{"rate limited", http.StatusTooManyRequests, func(err error) bool { return errors.Is(err, errors.QuotaLimitExceeded) }},
		{"passthrough", http.StatusServiceUnavailable, func(err error) bool {
			var pe *ProviderError
			return errors.As(err, &pe) && pe.Status == http.StatusServiceUnavailable
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"provider says no","type":"x"}}`))
			})
			_, err := c.Estimate(context.Background(), EstimateRequest{ProjectName: "p"})
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
			assert.Contains(t, err.Error(), "provider says no")
		})
	}
}

func TestEstimateWithoutKey(t *testing.T) {
	c := NewClient(context.Background(), Config{})
	assert.False(t, c.Configured())
	_, err := c.Estimate(context.Background(), EstimateRequest{})
	assert.True(t, errors.Is(err, errors.Unauthorized))
}

func TestEstimateNoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})
	_, err := c.Estimate(context.Background(), EstimateRequest{})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadGateway, pe.Status)
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"data":[{"id":"gpt-4o-mini","owned_by":"system"},{"id":"gpt-4o","owned_by":"system"}]}`))
	})

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gpt-4o-mini", models[0].ID)
}

func TestBuildPromptWithoutFeatures(t *testing.T) {
	p := BuildPrompt(EstimateRequest{ProjectName: "Blog"})
	assert.True(t, strings.HasPrefix(p, "Project name: Blog\n"))
	assert.Contains(t, p, "Selected features: none specified")
}

func TestParsePriceRange(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		ok     bool
		min    int
		max    int
		inBand bool
	}{
		{"spaces", "Price range: 8 000 - 12 000 PLN", true, 8000, 12000, true},
		{"commas and en dash", "Estimated 10,000–15,000 zł in total", true, 10000, 15000, true},
		{"plain", "6000-34000 PLN", true, 6000, 34000, true},
		{"above band", "Price range: 20 000 - 45 000 PLN", true, 20000, 45000, false},
		{"below band", "Price range: 3000 to 5000 PLN", true, 3000, 5000, false},
		{"prefers currency", "Delivery in 2-3 months. Price range: 9 000 - 11 000 PLN", true, 9000, 11000, true},
		{"none", "It depends on the scope.", false, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pr, ok := ParsePriceRange(tt.text)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.min, pr.Min)
			assert.Equal(t, tt.max, pr.Max)
			assert.Equal(t, Currency, pr.Currency)
			assert.Equal(t, tt.inBand, pr.WithinBand)
		})
	}
}
