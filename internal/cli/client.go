package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/newsletter-podcaster/internal/httpapi"
	"github.com/apresai/newsletter-podcaster/internal/jobs"
)

// apiClient talks to a running podcaster server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 60 * time.Second}}
}

// apiError is a non-2xx response with the server's detail message.
type apiError struct {
	Code   int
	Detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Detail)
}

func (c *apiClient) submit(ctx context.Context, path, apiKey string) (*jobs.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/generate-podcast", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if apiKey != "" {
		req.Header.Set(httpapi.KeyHeader, apiKey)
	}
	var job jobs.Job
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) status(ctx context.Context, id string) (*jobs.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/podcast-status/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var job jobs.Job
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// download streams the finished podcast into w.
func (c *apiClient) download(ctx context.Context, id string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/download-podcast/"+url.PathEscape(id), nil)
	if err != nil {
		return 0, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return 0, decodeAPIError(res)
	}
	return io.Copy(w, res.Body)
}

func (c *apiClient) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return decodeAPIError(res)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(res *http.Response) error {
	var body struct {
		Detail string `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Detail == "" {
		body.Detail = strings.TrimSpace(string(data))
	}
	return &apiError{Code: res.StatusCode, Detail: body.Detail}
}
