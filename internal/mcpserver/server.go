// Package mcpserver exposes podcast jobs as MCP tools.
package mcpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"github.com/apresai/newsletter-podcaster/internal/ingest"
	"github.com/apresai/newsletter-podcaster/internal/jobs"
)

// Jobs is the part of jobs.Service the tools use.
type Jobs interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*jobs.Job, error)
	Status(ctx context.Context, id string) (*jobs.Job, error)
}

// URLLoader turns a web page into a markdown document.
type URLLoader interface {
	FromURL(ctx context.Context, source string) (*ingest.Document, error)
}

// Canceller stops a running job. Only the local queue supports it.
type Canceller interface {
	Cancel(jobID string) bool
}

type Options struct {
	Jobs      Jobs
	URLs      URLLoader
	Canceller Canceller
	Version   string
	Logger    *slog.Logger
}

// Server is the MCP server for podcast generation.
type Server struct {
	mcp      *server.MCPServer
	handlers *Handlers
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	h := &Handlers{jobs: opts.Jobs, urls: opts.URLs, canceller: opts.Canceller, log: opts.Logger}

	mcpServer := server.NewMCPServer(
		"newsletter-podcaster",
		opts.Version,
		server.WithToolCapabilities(true),
	)
	tools := ToolDefs()
	mcpServer.AddTool(tools[0], h.HandleGeneratePodcast)
	mcpServer.AddTool(tools[1], h.HandleGetPodcast)
	if opts.Canceller != nil {
		mcpServer.AddTool(tools[2], h.HandleCancelPodcast)
	}
	return &Server{mcp: mcpServer, handlers: h}
}

// Handler serves the streamable HTTP transport. Sessions are not kept, so
// any replica can answer any call.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

// Handlers exposes the tool handlers for direct invocation.
func (s *Server) Handlers() *Handlers { return s.handlers }
