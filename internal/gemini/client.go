// Package gemini is a small REST client for Gemini generateContent, used for
// both script writing and multi-speaker speech synthesis. It speaks to
// AI Studio with an API key or to Vertex AI with application default
// credentials.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/donovanhide/eventsource"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/apresai/newsletter-podcaster/internal/config"
)

const (
	BackendAIStudio = "aistudio"
	BackendVertex   = "vertex"

	aiStudioBase = "https://generativelanguage.googleapis.com/v1beta"
	vertexRegion = "us-central1"
	cloudScope   = "https://www.googleapis.com/auth/cloud-platform"
)

// Options configures a Client.
type Options struct {
	Backend     string
	APIKey      string
	Project     string
	Region      string
	BaseURL     string // overrides the endpoint root, used by tests
	Timeout     time.Duration
	MaxAttempts int
	Logger      *slog.Logger
}

// Client calls generateContent and streamGenerateContent.
type Client struct {
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger

	tokenMu sync.Mutex
	tokens  oauth2.TokenSource
}

// New validates opts and returns a Client. AI Studio requires an API key;
// Vertex requires a project and resolves credentials lazily.
func New(opts Options) (*Client, error) {
	if opts.Backend == "" {
		opts.Backend = BackendAIStudio
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	switch opts.Backend {
	case BackendAIStudio:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("%w: GEMINI_API_KEY", config.ErrMissingCredential)
		}
		if opts.BaseURL == "" {
			opts.BaseURL = aiStudioBase
		}
	case BackendVertex:
		if opts.Project == "" {
			return nil, fmt.Errorf("%w: GCP project for vertex backend", config.ErrMissingCredential)
		}
		if opts.Region == "" {
			opts.Region = vertexRegion
		}
		if opts.BaseURL == "" {
			opts.BaseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google",
				opts.Region, opts.Project, opts.Region)
		}
	default:
		return nil, fmt.Errorf("unknown gemini backend %q: choose %s or %s", opts.Backend, BackendAIStudio, BackendVertex)
	}

	return &Client{
		opts: opts,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: opts.Timeout,
				IdleConnTimeout:       30 * time.Second,
			},
			CheckRedirect: keepHeaders,
		},
		logger: opts.Logger,
	}, nil
}

// keepHeaders carries auth headers across redirects.
func keepHeaders(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	for k, vv := range via[0].Header {
		if _, ok := req.Header[k]; !ok {
			req.Header[k] = vv
		}
	}
	return nil
}

func (c *Client) endpoint(model, method string) string {
	return fmt.Sprintf("%s/models/%s:%s", strings.TrimRight(c.opts.BaseURL, "/"), model, method)
}

func (c *Client) newRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.opts.Backend == BackendVertex {
		token, err := c.accessToken()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("x-goog-api-key", c.opts.APIKey)
	}
	return req, nil
}

// accessToken obtains an OAuth2 token via application default credentials.
// The token source outlives any one request, so it is built on a background
// context.
func (c *Client) accessToken() (string, error) {
	ts, err := c.tokenSource()
	if err != nil {
		return "", err
	}
	token, err := ts.Token()
	if err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	return token.AccessToken, nil
}

func (c *Client) tokenSource() (oauth2.TokenSource, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.tokens == nil {
		ts, err := google.DefaultTokenSource(context.Background(), cloudScope)
		if err != nil {
			return nil, fmt.Errorf("%w: default token source: %v (run 'gcloud auth application-default login' or set GOOGLE_APPLICATION_CREDENTIALS)",
				config.ErrMissingCredential, err)
		}
		c.tokens = oauth2.ReuseTokenSource(nil, ts)
	}
	return c.tokens, nil
}

// GenerateContent performs one request/response call, retrying on 429/5xx.
func (c *Client) GenerateContent(ctx context.Context, model string, reqBody Request) (*Response, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp Response
	err = WithRetry(ctx, c.opts.MaxAttempts, func() error {
		req, err := c.newRequest(ctx, c.endpoint(model, "generateContent"), body)
		if err != nil {
			return err
		}
		start := time.Now()
		res, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &RetryableError{Body: fmt.Sprintf("network error after %s: %v", time.Since(start).Round(time.Millisecond), err)}
		}
		defer res.Body.Close()

		if err := checkStatus(res); err != nil {
			c.logger.WarnContext(ctx, "gemini request failed", "model", model, "status", res.StatusCode, "error", err)
			return err
		}
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		c.logger.DebugContext(ctx, "gemini request done", "model", model, "duration_ms", time.Since(start).Milliseconds())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// checkStatus turns a non-200 response into an error, retryable for 429/5xx.
func checkStatus(res *http.Response) error {
	if res.StatusCode == http.StatusOK {
		return nil
	}
	errBody, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
		var retryAfter time.Duration
		if ra := res.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &RetryableError{StatusCode: res.StatusCode, Body: string(errBody), RetryAfter: retryAfter}
	}
	return fmt.Errorf("gemini API error (status %d): %s", res.StatusCode, string(errBody))
}

// Stream is an open streamGenerateContent response. It is read on the
// caller's goroutine; closing it closes the response body.
type Stream struct {
	body io.ReadCloser
	dec  *eventsource.Decoder
}

// StreamContent opens a server-sent-events stream. Opening is retried on
// 429/5xx; once open, a broken stream is reported to the caller as is.
func (c *Client) StreamContent(ctx context.Context, model string, reqBody Request) (*Stream, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var res *http.Response
	err = WithRetry(ctx, c.opts.MaxAttempts, func() error {
		req, err := c.newRequest(ctx, c.endpoint(model, "streamGenerateContent")+"?alt=sse", body)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/event-stream")
		r, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &RetryableError{Body: fmt.Sprintf("open stream: %v", err)}
		}
		if err := checkStatus(r); err != nil {
			r.Body.Close()
			c.logger.WarnContext(ctx, "gemini stream failed", "model", model, "status", r.StatusCode, "error", err)
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Stream{body: res.Body, dec: eventsource.NewDecoder(res.Body)}, nil
}

// Next returns the next streamed response, or io.EOF when the server closes
// the stream. Events without data are skipped.
func (s *Stream) Next(ctx context.Context) (*Response, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev, err := s.dec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read stream: %w", err)
		}
		data := ev.Data()
		if strings.TrimSpace(data) == "" {
			continue
		}
		var resp Response
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			return nil, fmt.Errorf("parse stream event: %w", err)
		}
		return &resp, nil
	}
}

// Close releases the connection. Unread events are discarded.
func (s *Stream) Close() error {
	return s.body.Close()
}
