package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/apresai/newsletter-podcaster/internal/config"
	"github.com/apresai/newsletter-podcaster/internal/jobs"
	"github.com/apresai/newsletter-podcaster/internal/queue"
)

type handlers struct {
	svc       Service
	maxUpload int64
	log       *slog.Logger
}

func (h *handlers) generate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			detail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxUpload))
			return
		}
		detail(c, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	if !jobs.IsMarkdownFile(fh.Filename) {
		h.log.WarnContext(c.Request.Context(), "unsupported upload", "filename", fh.Filename)
		detail(c, http.StatusBadRequest, "Only markdown files are supported")
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.fail(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		h.fail(c, fmt.Errorf("read upload: %w", err))
		return
	}
	if !utf8.Valid(data) {
		detail(c, http.StatusBadRequest, "file must be UTF-8 text")
		return
	}

	job, err := h.svc.Submit(c.Request.Context(), jobs.SubmitRequest{
		Filename: fh.Filename,
		Document: string(data),
		APIKey:   c.GetHeader(KeyHeader),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *handlers) status(c *gin.Context) {
	id := c.Param("job_id")
	job, err := h.svc.Status(c.Request.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		detail(c, http.StatusNotFound, fmt.Sprintf("Job %s not found", id))
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *handlers) download(c *gin.Context) {
	id := c.Param("job_id")
	job, path, err := h.svc.Download(c.Request.Context(), id)
	switch {
	case errors.Is(err, jobs.ErrNotFound) && job == nil:
		detail(c, http.StatusNotFound, fmt.Sprintf("Job %s not found", id))
		return
	case errors.Is(err, jobs.ErrNotFound):
		detail(c, http.StatusNotFound, "Podcast file not found")
		return
	case err != nil:
		h.fail(c, err)
		return
	}
	h.log.InfoContext(c.Request.Context(), "podcast download", "job_id", id)
	c.Header("Content-Type", "audio/wav")
	c.FileAttachment(path, "podcast_"+id+".wav")
}

// fail maps service errors onto status codes.
func (h *handlers) fail(c *gin.Context, err error) {
	var (
		inputErr *jobs.InputError
		stateErr *jobs.StateError
	)
	switch {
	case errors.As(err, &inputErr):
		detail(c, http.StatusBadRequest, inputErr.Reason)
	case errors.As(err, &stateErr):
		detail(c, http.StatusBadRequest, fmt.Sprintf("Podcast generation not completed. Current status: %s", stateErr.Status))
	case errors.Is(err, jobs.ErrNotFound):
		detail(c, http.StatusNotFound, "not found")
	case errors.Is(err, config.ErrMissingCredential):
		h.log.ErrorContext(c.Request.Context(), "missing credential", "error", err)
		detail(c, http.StatusInternalServerError, "GEMINI_API_KEY environment variable not set")
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrClosed):
		c.Header("Retry-After", "30")
		detail(c, http.StatusServiceUnavailable, "server is busy, try again later")
	default:
		h.log.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		detail(c, http.StatusInternalServerError, "internal server error")
	}
}

func detail(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"detail": msg})
}
