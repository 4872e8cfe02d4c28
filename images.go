package devquote

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"

	"github.com/eringen/devquote/datastore"
)

const (
	maxImageWidth = 1200
	jpegQuality   = 82
	maxUploadSize = 10 << 20
)

// UploadedImage describes a stored featured image.
type UploadedImage struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Size     int    `json:"size"`
}

// processImage decodes src, scales it down to maxImageWidth if wider and
// re-encodes it as JPEG.
func processImage(src io.Reader) ([]byte, int, int, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, 0, 0, errors.NewNotValid(err, "decode image")
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img, w, h = dst, maxImageWidth, newH
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, 0, 0, errors.Annotate(err, "encode jpeg")
	}
	return buf.Bytes(), w, h, nil
}

// imageFilename turns an upload name into a slugged .jpg name that does not
// exist in dir yet.
func imageFilename(dir, original string) string {
	base := datastore.Slugify(strings.TrimSuffix(original, filepath.Ext(original)))
	if base == "" {
		base = "image"
	}
	candidate := base + ".jpg"
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); err != nil {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d.jpg", base, n)
	}
}

func (a *App) handleImageUpload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return failRequired(c, []string{"image"})
	}
	if file.Size > maxUploadSize {
		return fail(c, http.StatusRequestEntityTooLarge, CodeValidation, "Image too large (max 10MB)")
	}

	src, err := file.Open()
	if err != nil {
		return errors.Trace(err)
	}
	defer src.Close()

	data, w, h, err := processImage(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "Invalid image", Code: CodeValidation, Details: err.Error()})
	}

	dir := a.Config.UploadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Annotate(err, "create uploads dir")
	}
	name := imageFilename(dir, file.Filename)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return errors.Annotate(err, "write image")
	}
	c.Logger().Infof("image uploaded: %s (%dx%d, %d bytes)", name, w, h, len(data))

	return c.JSON(http.StatusOK, UploadedImage{
		URL:      "/uploads/" + name,
		Filename: name,
		Width:    w,
		Height:   h,
		Size:     len(data),
	})
}
