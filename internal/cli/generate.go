package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/apresai/newsletter-podcaster/internal/ingest"
	"github.com/apresai/newsletter-podcaster/internal/jobs"
	"github.com/apresai/newsletter-podcaster/internal/progress"
	"github.com/apresai/newsletter-podcaster/internal/queue"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a podcast in-process from a markdown file, URL, or PDF",
	RunE:  runGenerate,
}

var (
	flagInput        string
	flagOutput       string
	flagMode         string
	flagGeminiAPIKey string
	flagVerbose      bool
)

func init() {
	generateCmd.Flags().StringVarP(&flagInput, "input", "i", "", "Source document (markdown path, URL, or PDF path)")
	generateCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Copy the final WAV here")
	generateCmd.Flags().StringVarP(&flagMode, "mode", "m", "", "Pipeline mode: sequential or parallel (overrides config)")
	generateCmd.Flags().StringVar(&flagGeminiAPIKey, "gemini-api-key", "", "Gemini API key (overrides GEMINI_API_KEY env var)")
	generateCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log every step instead of drawing a progress bar")
	generateCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	switch flagMode {
	case "", "sequential", "parallel":
	default:
		return fmt.Errorf("invalid mode %q: must be sequential or parallel", flagMode)
	}
	if flagMode != "" {
		cfg.Pipeline.Mode = flagMode
	}
	if flagGeminiAPIKey != "" {
		cfg.Gemini.APIKey = flagGeminiAPIKey
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	level := cfg.Telemetry.LogLevel
	if !flagVerbose {
		level = "warn"
	}
	logger := commandLogger(level)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	doc, err := ingest.NewLoader().Load(ctx, flagInput)
	if err != nil {
		return err
	}

	awsCfg := &awsOnce{region: cfg.AWS.Region}
	results, err := openResults(ctx, cfg, awsCfg, logger)
	if err != nil {
		return err
	}
	var onProgress progress.Callback
	if !flagVerbose {
		r := progress.NewBarRenderer(cmd.OutOrStdout())
		defer r.Finish()
		onProgress = r.Handle
	}

	stages := newStageBuilder(cfg, awsCfg, logger)
	defer stages.Close()
	store := jobs.NewMemoryStore()
	orch := newOrchestrator(cfg, store, results, stages.Factory, nil, onProgress, logger)

	id, err := jobs.NewJobID()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := store.Put(ctx, &jobs.Job{ID: id, Status: jobs.StatusQueued, CreatedAt: now, UpdatedAt: now}); err != nil {
		return err
	}

	final, err := orch.Run(ctx, queue.Task{JobID: id, Filename: doc.Filename, Document: doc.Text})
	if err != nil {
		return err
	}
	if len(final.Warnings) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %d unit(s) failed and were skipped:\n", len(final.Warnings))
		for _, w := range final.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "    - %s\n", w)
		}
	}
	if flagOutput != "" {
		if err := copyFile(final.ResultFile, flagOutput); err != nil {
			return err
		}
		if flagVerbose {
			fmt.Fprintf(cmd.OutOrStdout(), "Podcast saved to %s\n", flagOutput)
		}
	} else if flagVerbose {
		fmt.Fprintf(cmd.OutOrStdout(), "Podcast saved to %s\n", final.ResultFile)
	}
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open result: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}
