package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/apresai/newsletter-podcaster/internal/assembly"
	"github.com/apresai/newsletter-podcaster/internal/config"
	"github.com/apresai/newsletter-podcaster/internal/gemini"
	"github.com/apresai/newsletter-podcaster/internal/jobs"
	"github.com/apresai/newsletter-podcaster/internal/observability"
	"github.com/apresai/newsletter-podcaster/internal/pipeline"
	"github.com/apresai/newsletter-podcaster/internal/progress"
	"github.com/apresai/newsletter-podcaster/internal/queue"
	"github.com/apresai/newsletter-podcaster/internal/script"
	"github.com/apresai/newsletter-podcaster/internal/segment"
	"github.com/apresai/newsletter-podcaster/internal/storage"
	"github.com/apresai/newsletter-podcaster/internal/tts"
)

// awsOnce loads the AWS config at most once per process.
type awsOnce struct {
	region string
	once   sync.Once
	cfg    aws.Config
	err    error
}

func (a *awsOnce) get(ctx context.Context) (aws.Config, error) {
	a.once.Do(func() { a.cfg, a.err = config.AWS(ctx, a.region) })
	return a.cfg, a.err
}

// openStore builds the configured job store. The returned closer is never
// nil.
func openStore(ctx context.Context, cfg config.Config, awsCfg *awsOnce) (jobs.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store.Backend {
	case "memory":
		return jobs.NewMemoryStore(), noop, nil
	case "file":
		s, err := jobs.NewFileStore(cfg.Store.Dir)
		return s, noop, err
	case "sqlite":
		s, err := jobs.NewSQLiteStore(ctx, cfg.Store.Path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case "dynamodb":
		ac, err := awsCfg.get(ctx)
		if err != nil {
			return nil, noop, err
		}
		return jobs.NewDynamoStore(dynamodb.NewFromConfig(ac), cfg.Store.Table), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// openResults places final audio under the result dir and mirrors it to S3
// when a bucket is configured.
func openResults(ctx context.Context, cfg config.Config, awsCfg *awsOnce, logger *slog.Logger) (*storage.Results, error) {
	var mirror storage.Mirror
	if cfg.Storage.S3Bucket != "" {
		ac, err := awsCfg.get(ctx)
		if err != nil {
			return nil, err
		}
		mirror = storage.NewS3Mirror(s3.NewFromConfig(ac), cfg.Storage.S3Bucket, cfg.Storage.S3Prefix, cfg.Storage.CDNBaseURL)
	}
	return storage.NewResults(cfg.Storage.ResultDir, mirror, logger)
}

// openQueue builds the configured work queue.
func openQueue(cfg config.Config, logger *slog.Logger) (queue.Queue, error) {
	switch cfg.Queue.Backend {
	case "local":
		return queue.NewLocal(cfg.Queue.Workers, cfg.Queue.Capacity, logger), nil
	case "nats":
		return queue.NewNATS(cfg.Queue.NATS, cfg.Queue.Workers, logger)
	}
	return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
}

// stageBuilder creates script and speech stages from config. Stages for
// the server's own credentials are built once; a caller-supplied key gets
// fresh Gemini clients.
type stageBuilder struct {
	cfg    config.Config
	aws    *awsOnce
	logger *slog.Logger

	mu       sync.Mutex
	defaults *pipeline.Stages
	cloud    *tts.CloudStreamer
	bedrock  script.Converser
}

func newStageBuilder(cfg config.Config, awsCfg *awsOnce, logger *slog.Logger) *stageBuilder {
	return &stageBuilder{cfg: cfg, aws: awsCfg, logger: logger}
}

// Factory adapts the builder to pipeline.StageFactory.
func (b *stageBuilder) Factory(ctx context.Context, apiKey string) (pipeline.Stages, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey != "" {
		return b.build(ctx, apiKey)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.defaults != nil {
		return *b.defaults, nil
	}
	if err := b.cfg.RequireCredentials(); err != nil {
		return pipeline.Stages{}, err
	}
	st, err := b.buildLocked(ctx, "")
	if err != nil {
		return pipeline.Stages{}, err
	}
	b.defaults = &st
	return st, nil
}

func (b *stageBuilder) build(ctx context.Context, apiKey string) (pipeline.Stages, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buildLocked(ctx, apiKey)
}

func (b *stageBuilder) buildLocked(ctx context.Context, apiKey string) (pipeline.Stages, error) {
	var client *gemini.Client
	if b.cfg.Script.Provider == "gemini" || b.cfg.Speech.Provider == "gemini" {
		opts := gemini.Options{
			Backend:     b.cfg.Gemini.Backend,
			APIKey:      b.cfg.Gemini.APIKey,
			Project:     b.cfg.Gemini.Project,
			Region:      b.cfg.Gemini.Region,
			Timeout:     time.Duration(b.cfg.Gemini.TimeoutSec) * time.Second,
			MaxAttempts: b.cfg.Gemini.MaxAttempts,
			Logger:      b.logger,
		}
		if apiKey != "" {
			opts.Backend, opts.APIKey = gemini.BackendAIStudio, apiKey
		}
		var err error
		if client, err = gemini.New(opts); err != nil {
			return pipeline.Stages{}, err
		}
	}

	gen, err := b.textGenerator(ctx, client)
	if err != nil {
		return pipeline.Stages{}, err
	}
	streamer, err := b.speechStreamer(ctx, client)
	if err != nil {
		return pipeline.Stages{}, err
	}

	names := make([]string, len(b.cfg.Speech.Speakers))
	voices := make([]tts.SpeakerVoice, len(b.cfg.Speech.Speakers))
	for i, sp := range b.cfg.Speech.Speakers {
		names[i] = sp.Name
		voices[i] = tts.SpeakerVoice{Speaker: sp.Name, Voice: sp.Voice}
	}
	show := script.DefaultShow().WithSpeakerNames(names...)
	show.Name = b.cfg.Script.ShowName
	show.Language = b.cfg.Script.Language

	return pipeline.Stages{
		Writer: script.NewWriter(gen, b.cfg.Script.Model, b.cfg.Script.Temperature, show, b.logger),
		Speech: tts.NewSynthesizer(streamer, tts.SynthesizerOptions{
			Model:       b.cfg.Speech.Model,
			Voices:      voices,
			Temperature: b.cfg.Speech.Temperature,
			Language:    b.cfg.Script.Language,
			Logger:      b.logger,
		}),
	}, nil
}

func (b *stageBuilder) textGenerator(ctx context.Context, client *gemini.Client) (script.TextGenerator, error) {
	switch b.cfg.Script.Provider {
	case "gemini":
		return script.NewGeminiGenerator(client), nil
	case "claude":
		if b.cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY", config.ErrMissingCredential)
		}
		return script.NewClaudeGenerator(b.cfg.Anthropic.APIKey, b.cfg.Gemini.MaxAttempts), nil
	case "nova":
		if b.bedrock == nil {
			ac, err := b.aws.get(ctx)
			if err != nil {
				return nil, err
			}
			b.bedrock = bedrockruntime.NewFromConfig(ac)
		}
		return script.NewNovaGenerator(b.bedrock), nil
	}
	return nil, fmt.Errorf("unknown script provider %q", b.cfg.Script.Provider)
}

func (b *stageBuilder) speechStreamer(ctx context.Context, client *gemini.Client) (tts.SpeechStreamer, error) {
	switch b.cfg.Speech.Provider {
	case "gemini":
		return tts.NewGeminiStreamer(client), nil
	case "cloud":
		if b.cloud == nil {
			c, err := tts.NewCloudStreamer(ctx, b.cfg.Speech.LanguageCode)
			if err != nil {
				return nil, err
			}
			b.cloud = c
		}
		return b.cloud, nil
	}
	return nil, fmt.Errorf("unknown speech provider %q", b.cfg.Speech.Provider)
}

// Close releases long-lived provider clients.
func (b *stageBuilder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cloud != nil {
		return b.cloud.Close()
	}
	return nil
}

// newOrchestrator assembles the pipeline around the given store and results.
func newOrchestrator(cfg config.Config, store jobs.Store, results *storage.Results, stages pipeline.StageFactory,
	metrics *observability.Metrics, onProgress progress.Callback, logger *slog.Logger) *pipeline.Orchestrator {
	return pipeline.New(pipeline.Deps{
		Store:  store,
		Stages: stages,
		Segmenter: &segment.Splitter{
			FreeTalkMarker: cfg.Segment.FreeTalkMarker,
			LinksMarker:    cfg.Segment.LinksMarker,
			Logger:         logger,
		},
		Assembler: assembly.New(assembly.Options{
			Gap:    time.Duration(cfg.Pipeline.GapMS) * time.Millisecond,
			Logger: logger,
		}),
		Results:    results,
		Metrics:    metrics,
		OnProgress: onProgress,
		Logger:     logger,
	}, pipeline.Options{
		Mode:          pipeline.Mode(cfg.Pipeline.Mode),
		ScriptWorkers: cfg.Pipeline.ScriptWorkers,
		SpeechWorkers: cfg.Pipeline.SpeechWorkers,
		ScriptShare:   cfg.Pipeline.ScriptShare,
		MaxPartChars:  cfg.Script.MaxPartChars,
		WorkDir:       cfg.Pipeline.WorkDir,
	})
}
