package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eringen/devquote/datastore"
	"github.com/eringen/devquote/markdown"
)

const (
	maxPostTags = 10
	minTags     = 5
	maxTags     = 8
)

// Language is a supported content language.
type Language string

const (
	English Language = "en"
	Polish  Language = "pl"
)

// ParseLanguage accepts codes and names ("pl", "Polish", "polski").
func ParseLanguage(s string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "english", "angielski":
		return English, true
	case "pl", "polish", "polski":
		return Polish, true
	}
	return "", false
}

// Name returns the English name of l.
func (l Language) Name() string {
	if l == Polish {
		return "Polish"
	}
	return "English"
}

// PostRequest describes a post to generate.
type PostRequest struct {
	Topic    string
	Keywords []string
	Language string
	Tone     string
	Length   string
}

// GeneratedPost is a complete draft produced by GeneratePost.
type GeneratedPost struct {
	Title   string   `json:"title"`
	Slug    string   `json:"slug"`
	Content string   `json:"content"`
	Excerpt string   `json:"excerpt"`
	Tags    []string `json:"tags"`
}

var lengthWords = map[string]string{
	"short":  "about 500 words",
	"medium": "about 1000 words",
	"long":   "about 1800 words",
}

// GeneratePost drafts a full markdown post about req.Topic.
func (c *Client) GeneratePost(ctx context.Context, req PostRequest) (GeneratedPost, bool) {
	lang, ok := ParseLanguage(req.Language)
	if !ok {
		lang = English
	}
	tone := req.Tone
	if tone == "" {
		tone = "professional"
	}
	length, ok := lengthWords[strings.ToLower(req.Length)]
	if !ok {
		length = lengthWords["medium"]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a blog post for a software development studio about: %s\n", req.Topic)
	if kw := nonEmpty(req.Keywords); len(kw) > 0 {
		fmt.Fprintf(&b, "Work in these keywords naturally: %s\n", strings.Join(kw, ", "))
	}
	fmt.Fprintf(&b, "Language: %s. Tone: %s. Length: %s.\n", lang.Name(), tone, length)
	b.WriteString("Use markdown for the body with ## section headings, short paragraphs and lists where useful.\n")
	fmt.Fprintf(&b, `Respond with a single JSON object and nothing else, shaped as:
{"title": "...", "slug": "url-friendly-slug", "excerpt": "one or two sentences", "content": "markdown body", "tags": ["up to %d lowercase tags"]}`, maxPostTags)

	text, err := c.generate(ctx, b.String())
	if err != nil {
		c.logger.Errorf("genai: generate post about %q: %v", req.Topic, err)
		return GeneratedPost{}, false
	}

	var post GeneratedPost
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &post); err != nil {
		c.logger.Errorf("genai: generate post: response is not valid JSON: %v", err)
		return GeneratedPost{}, false
	}
	post.Title = cleanLine(markdown.Sanitize(post.Title))
	post.Content = strings.TrimSpace(markdown.Sanitize(post.Content))
	post.Excerpt = strings.TrimSpace(markdown.Sanitize(post.Excerpt))
	if post.Title == "" || post.Content == "" {
		c.logger.Warnf("genai: generate post: response missing title or content")
		return GeneratedPost{}, false
	}
	post.Tags = cleanTags(post.Tags, maxPostTags)
	post.Slug = datastore.Slugify(post.Slug)
	if post.Slug == "" {
		post.Slug = datastore.Slugify(post.Title)
	}
	return post, true
}

// ImproveContent rewrites content for clarity and structure, optionally
// following extra instructions.
func (c *Client) ImproveContent(ctx context.Context, content, instructions string) (string, bool) {
	prompt := "Improve the following blog post. Fix grammar, tighten the wording and improve structure " +
		"while keeping the meaning, the language and the markdown formatting. " +
		"Return only the improved markdown without commentary.\n"
	if s := strings.TrimSpace(instructions); s != "" {
		prompt += "Additional instructions: " + s + "\n"
	}
	prompt += "\n" + content

	text, err := c.generate(ctx, prompt)
	if err != nil {
		c.logger.Errorf("genai: improve content: %v", err)
		return "", false
	}
	out := strings.TrimSpace(markdown.Sanitize(stripCodeFence(text)))
	return out, out != ""
}

// GenerateTitle proposes one title for content.
func (c *Client) GenerateTitle(ctx context.Context, content string) (string, bool) {
	text, err := c.generate(ctx, "Write one catchy, SEO-friendly title (at most 70 characters) for the blog post below. "+
		"Use the same language as the post. Return only the title.\n\n"+content)
	if err != nil {
		c.logger.Errorf("genai: generate title: %v", err)
		return "", false
	}
	title := cleanLine(markdown.Sanitize(firstLine(text)))
	return title, title != ""
}

// GenerateExcerpt writes a one or two sentence summary of content.
func (c *Client) GenerateExcerpt(ctx context.Context, content string) (string, bool) {
	text, err := c.generate(ctx, "Write a one or two sentence excerpt (at most 160 characters) summarizing the blog post below. "+
		"Use the same language as the post. Return only the excerpt as plain text.\n\n"+content)
	if err != nil {
		c.logger.Errorf("genai: generate excerpt: %v", err)
		return "", false
	}
	excerpt := cleanLine(markdown.Sanitize(text))
	return excerpt, excerpt != ""
}

// GenerateTags proposes between five and eight tags for content.
func (c *Client) GenerateTags(ctx context.Context, content string) ([]string, bool) {
	text, err := c.generate(ctx, fmt.Sprintf("Suggest %d to %d short, lowercase tags for the blog post below. "+
		"Return only a JSON array of strings.\n\n%s", minTags, maxTags, content))
	if err != nil {
		c.logger.Errorf("genai: generate tags: %v", err)
		return nil, false
	}
	tags := parseTagList(stripCodeFence(text))
	if len(tags) == 0 {
		c.logger.Warnf("genai: generate tags: no tags in response")
		return nil, false
	}
	if len(tags) < minTags {
		c.logger.Warnf("genai: generate tags: only %d tags returned", len(tags))
	}
	return tags, true
}

// Translate translates markdown content into target (English or Polish).
func (c *Client) Translate(ctx context.Context, content, target string) (string, bool) {
	lang, ok := ParseLanguage(target)
	if !ok {
		c.logger.Warnf("genai: translate: unsupported target language %q", target)
		return "", false
	}
	source := Polish
	if lang == Polish {
		source = English
	}
	text, err := c.generate(ctx, fmt.Sprintf("Translate the following blog post from %s to %s. "+
		"Preserve the markdown formatting, links and code blocks exactly. Return only the translation.\n\n%s",
		source.Name(), lang.Name(), content))
	if err != nil {
		c.logger.Errorf("genai: translate to %s: %v", lang, err)
		return "", false
	}
	out := strings.TrimSpace(markdown.Sanitize(stripCodeFence(text)))
	return out, out != ""
}

// stripCodeFence removes a ```lang ... ``` wrapper around the whole text.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	s = strings.TrimSuffix(s[3:], "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], " {[") {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// cleanLine trims markdown heading markers, labels and wrapping quotes.
func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "# ")
	for _, label := range []string{"Title:", "Excerpt:", "Tytuł:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, label))
	}
	s = strings.Trim(s, "\"'`*")
	return strings.TrimSpace(s)
}

// parseTagList accepts a JSON array or a comma/newline separated list.
func parseTagList(s string) []string {
	var arr []string
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		arr = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' })
	}
	return cleanTags(arr, maxTags)
}

func cleanTags(in []string, limit int) []string {
	for i, t := range in {
		in[i] = strings.Trim(strings.TrimSpace(t), "-*#\"'` ")
	}
	tags := datastore.NormalizeTags(in)
	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags
}

func nonEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
