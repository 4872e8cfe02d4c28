package chat

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Price band the estimator is instructed to stay within.
const (
	BandMin  = 6000
	BandMax  = 34000
	Currency = "PLN"
)

// EstimateRequest describes the project to estimate.
type EstimateRequest struct {
	ProjectName string
	Description string
	Timeline    string
	ProjectType string
	Features    []string
	Complexity  int
}

// SystemPrompt fixes the output format and the price band.
var SystemPrompt = fmt.Sprintf(`You are a senior project estimator at a software studio that builds websites, web applications and online stores.
Estimate the cost of the project described by the user.
Rules:
- Quote a single price range in %[3]s, never below %[1]d %[3]s and never above %[2]d %[3]s.
- Start your answer with the line "Price range: <min> - <max> %[3]s".
- Follow with a short breakdown of the main work items and an estimated delivery time.
- Keep the whole answer under 200 words and do not ask follow-up questions.`, BandMin, BandMax, Currency)

// BuildPrompt renders the user message for req.
func BuildPrompt(req EstimateRequest) string {
	features := "none specified"
	if len(req.Features) > 0 {
		features = strings.Join(req.Features, ", ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Project name: %s\n", req.ProjectName)
	fmt.Fprintf(&b, "Project type: %s\n", req.ProjectType)
	fmt.Fprintf(&b, "Description: %s\n", req.Description)
	fmt.Fprintf(&b, "Timeline: %s\n", req.Timeline)
	fmt.Fprintf(&b, "Selected features: %s\n", features)
	fmt.Fprintf(&b, "Complexity: %d%%\n", req.Complexity)
	return b.String()
}

// Estimate asks the provider for a cost estimate and returns its answer verbatim.
func (c *Client) Estimate(ctx context.Context, req EstimateRequest) (string, error) {
	return c.Complete(ctx, SystemPrompt, BuildPrompt(req))
}

// PriceRange is the numeric range found in an estimate.
type PriceRange struct {
	Min        int    `json:"min"`
	Max        int    `json:"max"`
	Currency   string `json:"currency"`
	WithinBand bool   `json:"withinBand"`
}

var (
	amount  = `(\d{1,3}(?:[ ,.\x{00A0}]\d{3})+|\d+)`
	rangeRe = regexp.MustCompile(amount + `\s*(?:PLN|zł|zl)?\s*(?:-|–|—|to)\s*` + amount + `\s*(PLN|zł|zl)?`)
	digitRe = regexp.MustCompile(`\D`)
)

// ParsePriceRange extracts a "<min> - <max>" range from text, preferring
// the first one followed by a currency. The estimate text itself is never
// rewritten; the band flag only reports whether the provider respected its
// instructions.
func ParsePriceRange(text string) (PriceRange, bool) {
	matches := rangeRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return PriceRange{}, false
	}
	m := matches[0]
	for _, cand := range matches {
		if cand[3] != "" {
			m = cand
			break
		}
	}
	lo, err1 := strconv.Atoi(digitRe.ReplaceAllString(m[1], ""))
	hi, err2 := strconv.Atoi(digitRe.ReplaceAllString(m[2], ""))
	if err1 != nil || err2 != nil {
		return PriceRange{}, false
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return PriceRange{
		Min:        lo,
		Max:        hi,
		Currency:   Currency,
		WithinBand: lo >= BandMin && hi <= BandMax,
	}, true
}
