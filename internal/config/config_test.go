package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Script.MaxPartChars != 3000 {
		t.Errorf("max_part_chars = %d, want 3000", cfg.Script.MaxPartChars)
	}
	voices := cfg.Speech.VoiceMap()
	if voices["Minami"] != "Zephyr" || voices["Nakajima"] != "Enceladus" {
		t.Errorf("voices = %v", voices)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "podcast.yaml")
	yamlBody := `
http:
  port: 9090
pipeline:
  mode: sequential
  script_share: 0.25
store:
  backend: sqlite
  path: /tmp/x.db
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PODCAST_PIPELINE_SPEECH_WORKERS", "7")
	t.Setenv("PODCAST_SPEECH_VOICES", "Minami=Kore, Nakajima=Charon")
	t.Setenv("PODCAST_NATS_SERVERS", "nats://a:4222, nats://b:4222")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 9090 || cfg.Pipeline.Mode != "sequential" || cfg.Store.Backend != "sqlite" {
		t.Errorf("yaml not applied: %+v", cfg)
	}
	if cfg.Pipeline.SpeechWorkers != 7 {
		t.Errorf("speech_workers = %d, want 7", cfg.Pipeline.SpeechWorkers)
	}
	if cfg.Speech.VoiceMap()["Minami"] != "Kore" || cfg.Speech.Speakers[0].Role != "announcer" {
		t.Errorf("speakers = %+v", cfg.Speech.Speakers)
	}
	if len(cfg.Queue.NATS.Servers) != 2 || cfg.Queue.NATS.Servers[1] != "nats://b:4222" {
		t.Errorf("nats servers = %v", cfg.Queue.NATS.Servers)
	}
	if cfg.HTTP.MaxUploadMB != 10 {
		t.Errorf("defaults lost for unset fields")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }},
		{"bad mode", func(c *Config) { c.Pipeline.Mode = "eager" }},
		{"zero workers", func(c *Config) { c.Pipeline.ScriptWorkers = 0 }},
		{"share too large", func(c *Config) { c.Pipeline.ScriptShare = 0.9 }},
		{"three speakers", func(c *Config) {
			c.Speech.Speakers = append(c.Speech.Speakers, SpeakerConfig{Name: "X", Voice: "Y"})
		}},
		{"unknown store", func(c *Config) { c.Store.Backend = "redis" }},
		{"unknown queue", func(c *Config) { c.Queue.Backend = "kafka" }},
		{"unknown exporter", func(c *Config) { c.Telemetry.TraceExporter = "zipkin" }},
		{"max part chars", func(c *Config) { c.Script.MaxPartChars = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatal("validate accepted invalid config")
			}
		})
	}
	if err := validate(Default()); err != nil {
		t.Fatalf("validate(Default()) = %v", err)
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg := Default()
	if err := cfg.RequireCredentials(); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("RequireCredentials without key = %v", err)
	}
	cfg.Gemini.APIKey = "k"
	if err := cfg.RequireCredentials(); err != nil {
		t.Fatalf("RequireCredentials with key = %v", err)
	}
	cfg.Script.Provider = "claude"
	if err := cfg.RequireCredentials(); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("claude without anthropic key = %v", err)
	}
}

type fakeSecrets map[string]string

func (f fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v, ok := f[aws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestLoadSecrets(t *testing.T) {
	cfg := Default()
	cfg.Anthropic.APIKey = "already-set"
	secrets := fakeSecrets{
		"/podcast/GEMINI_API_KEY":    "from-secrets",
		"/podcast/ANTHROPIC_API_KEY": "should-not-win",
	}
	LoadSecrets(context.Background(), secrets, "/podcast/", &cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if cfg.Gemini.APIKey != "from-secrets" {
		t.Errorf("gemini key = %q", cfg.Gemini.APIKey)
	}
	if cfg.Anthropic.APIKey != "already-set" {
		t.Errorf("existing anthropic key overwritten: %q", cfg.Anthropic.APIKey)
	}
}
