package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/newsletter-podcaster/internal/jobs"
)

var tracer = otel.Tracer("github.com/apresai/newsletter-podcaster/mcpserver")

const defaultFilename = "newsletter.md"

// ToolDefs returns generate_podcast, get_podcast, and cancel_podcast.
func ToolDefs() []mcp.Tool {
	jobIDSchema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"job_id": map[string]any{
				"type":        "string",
				"description": "The job ID returned from generate_podcast",
			},
		},
		Required: []string{"job_id"},
	}
	return []mcp.Tool{
		{
			Name:        "generate_podcast",
			Description: "Turn a newsletter into a two-host podcast. Queues a job and returns its job_id immediately; poll get_podcast for progress.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"markdown": map[string]any{
						"type":        "string",
						"description": "Newsletter content as markdown. Level-2 headings separate segments.",
					},
					"input_url": map[string]any{
						"type":        "string",
						"description": "URL of an article to convert instead of markdown",
					},
					"filename": map[string]any{
						"type":        "string",
						"description": "Name of the markdown document (.md or .markdown)",
						"default":     defaultFilename,
					},
					"gemini_api_key": map[string]any{
						"type":        "string",
						"description": "Your Gemini API key, when the server allows bring-your-own-key",
					},
				},
			},
		},
		{
			Name:        "get_podcast",
			Description: "Get the status of a podcast job: progress, per-stage counters, warnings, and the result location once completed.",
			InputSchema: jobIDSchema,
		},
		{
			Name:        "cancel_podcast",
			Description: "Cancel a running podcast job. The job is marked failed.",
			InputSchema: jobIDSchema,
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	jobs      Jobs
	urls      URLLoader
	canceller Canceller
	log       *slog.Logger
}

// HandleGeneratePodcast submits a job from markdown or a URL.
func (h *Handlers) HandleGeneratePodcast(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_podcast")
	defer span.End()

	sub := jobs.SubmitRequest{
		Filename: mcp.ParseString(req, "filename", defaultFilename),
		Document: mcp.ParseString(req, "markdown", ""),
		APIKey:   mcp.ParseString(req, "gemini_api_key", ""),
	}
	inputURL := mcp.ParseString(req, "input_url", "")
	span.SetAttributes(attribute.String("input_url", inputURL), attribute.String("filename", sub.Filename))

	switch {
	case sub.Document == "" && inputURL == "":
		span.SetStatus(codes.Error, "missing input")
		return mcp.NewToolResultError("either markdown or input_url is required"), nil
	case sub.Document == "" && h.urls == nil:
		return mcp.NewToolResultError("input_url is not supported by this server"), nil
	case sub.Document == "":
		doc, err := h.urls.FromURL(ctx, inputURL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			return mcp.NewToolResultError(fmt.Sprintf("failed to load %s: %v", inputURL, err)), nil
		}
		sub.Document, sub.Filename = doc.Text, doc.Filename
	}

	job, err := h.jobs.Submit(ctx, sub)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start job: %v", err)), nil
	}

	span.SetAttributes(attribute.String("job_id", job.ID))
	h.log.InfoContext(ctx, "podcast job submitted via mcp", "job_id", job.ID)

	return jsonResult(map[string]any{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "Podcast generation queued. Use get_podcast with this job_id to check progress.",
	})
}

// HandleGetPodcast returns the job record.
func (h *Handlers) HandleGetPodcast(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_podcast")
	defer span.End()

	id := mcp.ParseString(req, "job_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing job_id")
		return mcp.NewToolResultError("job_id is required"), nil
	}
	span.SetAttributes(attribute.String("job_id", id))

	job, err := h.jobs.Status(ctx, id)
	if errors.Is(err, jobs.ErrNotFound) {
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("Job %s not found", id)), nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get job failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to get job: %v", err)), nil
	}
	return jsonResult(job)
}

// HandleCancelPodcast cancels a running job.
func (h *Handlers) HandleCancelPodcast(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := tracer.Start(ctx, "tool.cancel_podcast")
	defer span.End()

	id := mcp.ParseString(req, "job_id", "")
	if id == "" {
		return mcp.NewToolResultError("job_id is required"), nil
	}
	if h.canceller == nil || !h.canceller.Cancel(id) {
		return mcp.NewToolResultError(fmt.Sprintf("job %s is not running on this server", id)), nil
	}
	h.log.InfoContext(ctx, "podcast job cancelled via mcp", "job_id", id)
	return jsonResult(map[string]any{"job_id": id, "cancelled": true})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
