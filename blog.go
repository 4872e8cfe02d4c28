package devquote

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/devquote/datastore"
	"github.com/eringen/devquote/markdown"
)

type pageResponse struct {
	Posts   []datastore.Post `json:"posts"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	HasMore bool             `json:"hasMore"`
	IsAdmin bool             `json:"isAdmin"`
}

func newPageResponse(page datastore.Page, limit, offset int) pageResponse {
	return pageResponse{
		Posts:   page.Posts,
		Total:   page.Total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(page.Posts) < page.Total,
	}
}

// storeFailure answers a failed store result.
func storeFailure[T any](c echo.Context, res datastore.Result[T], notFound string) error {
	switch {
	case res.NotFound():
		return fail(c, http.StatusNotFound, CodePostNotFound, notFound)
	case res.Invalid():
		return c.JSON(http.StatusBadRequest, apiError{Error: "The data store rejected the request", Code: CodeValidation, Details: res.Err.Error()})
	}
	return fail(c, http.StatusInternalServerError, CodeStoreUnavailable, "The data store is unavailable")
}

// handleBlogList serves published posts only, admin or not.
func (a *App) handleBlogList(c echo.Context) error {
	limit, offset := pageParams(c)
	res := a.Cache.ListPublished(c.Request().Context(), datastore.ListOptions{
		Limit:  limit,
		Offset: offset,
		Tag:    c.QueryParam("tag"),
	})
	if !res.OK() {
		return storeFailure(c, res, "")
	}
	resp := newPageResponse(res.Value, limit, offset)
	resp.IsAdmin = IsAdmin(c)
	return c.JSON(http.StatusOK, resp)
}

type postView struct {
	datastore.Post
	ContentHTML string `json:"contentHtml"`
}

func (a *App) handleBlogPost(c echo.Context) error {
	res := a.Store.GetPostBySlug(c.Request().Context(), c.Param("slug"), true)
	if !res.OK() {
		return storeFailure(c, res, "Post not found")
	}
	return c.JSON(http.StatusOK, postView{Post: res.Value, ContentHTML: markdown.Render(res.Value.Content)})
}

func (a *App) handleAdminPosts(c echo.Context) error {
	limit, offset := pageParams(c)
	res := a.Store.ListPosts(c.Request().Context(), datastore.ListOptions{
		Limit:  limit,
		Offset: offset,
		Tag:    c.QueryParam("tag"),
	})
	if !res.OK() {
		return storeFailure(c, res, "")
	}
	resp := newPageResponse(res.Value, limit, offset)
	resp.IsAdmin = true
	return c.JSON(http.StatusOK, resp)
}

// handleAdminPost returns one post by id, drafts included.
func (a *App) handleAdminPost(c echo.Context) error {
	res := a.Store.GetPostByID(c.Request().Context(), c.Param("id"))
	if !res.OK() {
		return storeFailure(c, res, "Post not found")
	}
	return c.JSON(http.StatusOK, postView{Post: res.Value, ContentHTML: markdown.Render(res.Value.Content)})
}

// postInput is the body of create and update requests. Status, when
// present, takes precedence over Published.
type postInput struct {
	Title         *string   `json:"title"`
	Slug          *string   `json:"slug"`
	Content       *string   `json:"content"`
	Excerpt       *string   `json:"excerpt"`
	FeaturedImage *string   `json:"featured_image"`
	Author        *string   `json:"author"`
	Published     *bool     `json:"published"`
	Status        *string   `json:"status"`
	Tags          *[]string `json:"tags"`
}

// published normalizes status ("published"/"draft") into the published flag.
func (in postInput) published() (*bool, bool) {
	if in.Status == nil {
		return in.Published, true
	}
	var v bool
	switch strings.ToLower(strings.TrimSpace(*in.Status)) {
	case "published":
		v = true
	case "draft":
		v = false
	default:
		return nil, false
	}
	return &v, true
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func (a *App) handleCreatePost(c echo.Context) error {
	var in postInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	if missing := missingFields(field{"title", str(in.Title)}, field{"content", str(in.Content)}); len(missing) > 0 {
		return failRequired(c, missing)
	}
	published, ok := in.published()
	if !ok {
		return fail(c, http.StatusBadRequest, CodeValidation, `status must be "published" or "draft"`)
	}

	post := datastore.Post{
		Title:         str(in.Title),
		Content:       *in.Content,
		Excerpt:       str(in.Excerpt),
		FeaturedImage: str(in.FeaturedImage),
		Author:        str(in.Author),
	}
	post.Slug = datastore.Slugify(str(in.Slug))
	if post.Slug == "" {
		post.Slug = datastore.Slugify(post.Title)
	}
	if post.Slug == "" {
		return fail(c, http.StatusBadRequest, CodeValidation, "Could not derive a slug from the title; provide one")
	}
	if published != nil {
		post.Published = *published
	}
	if in.Tags != nil {
		post.Tags = datastore.NormalizeTags(*in.Tags)
	}

	res := a.Store.CreatePost(c.Request().Context(), post)
	if !res.OK() {
		return storeFailure(c, res, "")
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusCreated, map[string]any{"success": true, "post": res.Value})
}

func (a *App) handleUpdatePost(c echo.Context) error {
	var in postInput
	if err := c.Bind(&in); err != nil {
		return err
	}
	published, ok := in.published()
	if !ok {
		return fail(c, http.StatusBadRequest, CodeValidation, `status must be "published" or "draft"`)
	}
	if in.Title != nil && str(in.Title) == "" {
		return fail(c, http.StatusBadRequest, CodeValidation, "title cannot be empty")
	}

	patch := datastore.PostPatch{
		Title:         trimmed(in.Title),
		Content:       in.Content,
		Excerpt:       trimmed(in.Excerpt),
		FeaturedImage: trimmed(in.FeaturedImage),
		Author:        trimmed(in.Author),
		Published:     published,
	}
	if in.Slug != nil {
		slug := datastore.Slugify(*in.Slug)
		if slug == "" {
			return fail(c, http.StatusBadRequest, CodeValidation, "slug cannot be empty")
		}
		patch.Slug = &slug
	}
	if in.Tags != nil {
		tags := datastore.NormalizeTags(*in.Tags)
		patch.Tags = &tags
	}
	if patch.Empty() {
		return fail(c, http.StatusBadRequest, CodeValidation, "No fields to update")
	}

	res := a.Store.UpdatePost(c.Request().Context(), c.Param("id"), patch)
	if !res.OK() {
		return storeFailure(c, res, "Post not found")
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, map[string]any{"success": true, "post": res.Value})
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	return &s
}

func (a *App) handleDeletePost(c echo.Context) error {
	res := a.Store.DeletePost(c.Request().Context(), c.Param("id"))
	if !res.OK() {
		return storeFailure(c, res, "Post not found")
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, map[string]any{"success": true, "post": res.Value})
}

func (a *App) handleAdminEmails(c echo.Context) error {
	limit, offset := pageParams(c)
	res := a.Store.ListEmails(c.Request().Context(), limit, offset)
	if !res.OK() {
		return storeFailure(c, res, "")
	}
	emails := res.Value
	if emails == nil {
		emails = []datastore.EmailRecord{}
	}
	return c.JSON(http.StatusOK, map[string]any{"emails": emails, "limit": limit, "offset": offset})
}
