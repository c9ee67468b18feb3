package handler

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/hylarucoder/animatediff-webui/internal/client"
	"github.com/hylarucoder/animatediff-webui/pkg/response"
)

var mediaExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".mp4":  true,
}

// MediaHandler serves thumbnails and rendered videos from below root.
type MediaHandler struct {
	root string
	log  zerolog.Logger
}

func NewMediaHandler(root string, logger zerolog.Logger) (*MediaHandler, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media root: %w", err)
	}
	return &MediaHandler{root: abs, log: logger}, nil
}

// Serve handles GET /media?path=
// A Range header gets a 206 with exactly the requested slice.
func (h *MediaHandler) Serve(c *fiber.Ctx) error {
	raw := c.Query("path")
	if raw == "" {
		return response.ValidationError(c, "path is required", nil)
	}
	p, err := h.resolve(raw)
	if err != nil {
		return response.Forbidden(c, err.Error())
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return response.NotFound(c, "File not found")
		}
		h.log.Error().Err(err).Str("path", p).Msg("failed to open media")
		return response.ServiceError(c, "Failed to open file")
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return response.NotFound(c, "File not found")
	}
	size := info.Size()

	c.Set(fiber.HeaderAcceptRanges, "bytes")
	c.Set(fiber.HeaderContentType, client.ContentType(p))

	rangeHeader := c.Get(fiber.HeaderRange)
	if rangeHeader == "" {
		return c.SendStream(f, int(size))
	}

	start, end, err := fasthttp.ParseByteRange([]byte(rangeHeader), int(size))
	if err != nil {
		f.Close()
		return response.BadRange(c, size)
	}
	if _, err := f.Seek(int64(start), io.SeekStart); err != nil {
		f.Close()
		return response.ServiceError(c, "Failed to read file")
	}

	n := end - start + 1
	c.Set(fiber.HeaderContentRange, "bytes "+strconv.Itoa(start)+"-"+strconv.Itoa(end)+"/"+strconv.FormatInt(size, 10))
	c.Status(fiber.StatusPartialContent)
	return c.SendStream(&section{Reader: io.LimitReader(f, int64(n)), Closer: f}, n)
}

// resolve maps the query path onto a file below root with an allowed
// extension. Relative paths are taken from root.
func (h *MediaHandler) resolve(raw string) (string, error) {
	p := filepath.FromSlash(raw)
	if !filepath.IsAbs(p) {
		p = filepath.Join(h.root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(h.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path is outside the media root")
	}
	if !mediaExts[strings.ToLower(filepath.Ext(p))] {
		return "", errors.New("file type not allowed")
	}
	return p, nil
}

// section closes the file once fasthttp has streamed the slice.
type section struct {
	io.Reader
	io.Closer
}
