// Package config loads service configuration from YAML with PODCAST_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingCredential reports that a provider credential is not configured.
var ErrMissingCredential = errors.New("missing credential")

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Gemini      GeminiConfig    `yaml:"gemini"`
	Anthropic   AnthropicConfig `yaml:"anthropic"`
	Script      ScriptConfig    `yaml:"script"`
	Speech      SpeechConfig    `yaml:"speech"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
	Segment     SegmentConfig   `yaml:"segment"`
	Store       StoreConfig     `yaml:"store"`
	Storage     StorageConfig   `yaml:"storage"`
	Queue       QueueConfig     `yaml:"queue"`
	AWS         AWSConfig       `yaml:"aws"`
}

type HTTPConfig struct {
	Bind        string `yaml:"bind"`
	Port        int    `yaml:"port"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
	MCPEnabled  bool   `yaml:"mcp_enabled"`
	AllowBYOKey bool   `yaml:"allow_byo_key"`
}

type TelemetryConfig struct {
	LogLevel      string `yaml:"log_level"`
	TraceExporter string `yaml:"trace_exporter"` // none, otlp, stdout
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
	Metrics       bool   `yaml:"metrics"`
}

type GeminiConfig struct {
	APIKey      string `yaml:"api_key"`
	Backend     string `yaml:"backend"` // aistudio, vertex
	Project     string `yaml:"project"`
	Region      string `yaml:"region"`
	MaxAttempts int    `yaml:"max_attempts"`
	TimeoutSec  int    `yaml:"timeout_seconds"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

type ScriptConfig struct {
	Provider     string  `yaml:"provider"` // gemini, claude, nova
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	MaxPartChars int     `yaml:"max_part_chars"`
	Language     string  `yaml:"language"`
	ShowName     string  `yaml:"show_name"`
}

type SpeechConfig struct {
	Provider     string          `yaml:"provider"` // gemini, cloud
	Model        string          `yaml:"model"`
	Temperature  float64         `yaml:"temperature"`
	LanguageCode string          `yaml:"language_code"`
	Speakers     []SpeakerConfig `yaml:"speakers"`
}

// SpeakerConfig binds a script speaker label to a prebuilt voice.
type SpeakerConfig struct {
	Name  string `yaml:"name"`
	Voice string `yaml:"voice"`
	Role  string `yaml:"role"`
}

type PipelineConfig struct {
	Mode          string  `yaml:"mode"` // sequential, parallel
	ScriptWorkers int     `yaml:"script_workers"`
	SpeechWorkers int     `yaml:"speech_workers"`
	ScriptShare   float64 `yaml:"script_share"`
	WorkDir       string  `yaml:"work_dir"`
	// GapMS is silence inserted between voiced parts in the final file.
	GapMS int `yaml:"gap_ms"`
}

type SegmentConfig struct {
	FreeTalkMarker string `yaml:"free_talk_marker"`
	LinksMarker    string `yaml:"links_marker"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, file, sqlite, dynamodb
	Dir     string `yaml:"dir"`
	Path    string `yaml:"path"`
	Table   string `yaml:"table"`
}

type StorageConfig struct {
	ResultDir  string `yaml:"result_dir"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	CDNBaseURL string `yaml:"cdn_base_url"`
}

type QueueConfig struct {
	Backend  string     `yaml:"backend"` // local, nats
	Workers  int        `yaml:"workers"`
	Capacity int        `yaml:"capacity"`
	NATS     NATSConfig `yaml:"nats"`
}

type NATSConfig struct {
	Servers        []string `yaml:"servers"`
	Subject        string   `yaml:"subject"`
	Stream         string   `yaml:"stream"`
	QueueGroup     string   `yaml:"queue_group"` // durable consumer name
	StoreDir       string   `yaml:"store_dir"`   // JetStream storage of the embedded server
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type AWSConfig struct {
	Region       string `yaml:"region"`
	SecretPrefix string `yaml:"secret_prefix"`
}

func Default() Config {
	return Config{
		ServiceName: "newsletter-podcaster",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:        "0.0.0.0",
			Port:        8000,
			MaxUploadMB: 10,
			MCPEnabled:  true,
			AllowBYOKey: true,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			OTLPInsecure:  true,
			Metrics:       true,
		},
		Gemini: GeminiConfig{
			Backend:     "aistudio",
			Region:      "us-central1",
			MaxAttempts: 3,
			TimeoutSec:  300,
		},
		Script: ScriptConfig{
			Provider:     "gemini",
			Model:        "gemini-2.5-flash",
			Temperature:  0.7,
			MaxPartChars: 3000,
			Language:     "Japanese",
			ShowName:     "週刊Life is beautiful 拾い読みポッドキャスト",
		},
		Speech: SpeechConfig{
			Provider:     "gemini",
			Model:        "gemini-2.5-flash-preview-tts",
			Temperature:  1.0,
			LanguageCode: "ja-JP",
			Speakers: []SpeakerConfig{
				{Name: "Minami", Voice: "Zephyr", Role: "announcer"},
				{Name: "Nakajima", Voice: "Enceladus", Role: "author"},
			},
		},
		Pipeline: PipelineConfig{
			Mode:          "parallel",
			ScriptWorkers: 4,
			SpeechWorkers: 4,
			ScriptShare:   0.3,
			WorkDir:       "./tmp/work",
		},
		Segment: SegmentConfig{
			FreeTalkMarker: "# 今週のざっくばらん",
			LinksMarker:    "# 私の目に止まった記事",
		},
		Store: StoreConfig{
			Backend: "file",
			Dir:     "./tmp/status",
			Path:    "./tmp/jobs.db",
			Table:   "newsletter-podcasts",
		},
		Storage: StorageConfig{
			ResultDir: "./tmp/final_audio",
			S3Prefix:  "episodes/",
		},
		Queue: QueueConfig{
			Backend:  "local",
			Workers:  2,
			Capacity: 32,
			NATS: NATSConfig{
				Servers:        []string{"nats://localhost:4222"},
				Subject:        "podcast.jobs",
				Stream:         "PODCAST_JOBS",
				QueueGroup:     "podcast-workers",
				StoreDir:       "./tmp/nats",
				Port:           4222,
				ConnectTimeout: 2000,
			},
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "PODCAST_SERVICE_NAME")
	overrideString(&cfg.Environment, "PODCAST_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PODCAST_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PODCAST_HTTP_PORT")
	overrideInt(&cfg.HTTP.MaxUploadMB, "PODCAST_HTTP_MAX_UPLOAD_MB")
	overrideBool(&cfg.HTTP.MCPEnabled, "PODCAST_HTTP_MCP_ENABLED")
	overrideBool(&cfg.HTTP.AllowBYOKey, "PODCAST_HTTP_ALLOW_BYO_KEY")
	overrideString(&cfg.Telemetry.LogLevel, "PODCAST_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "PODCAST_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PODCAST_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.Metrics, "PODCAST_METRICS")
	overrideString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	overrideString(&cfg.Gemini.Backend, "PODCAST_GEMINI_BACKEND")
	overrideString(&cfg.Gemini.Project, "GCP_PROJECT")
	overrideString(&cfg.Gemini.Region, "GCP_REGION")
	overrideInt(&cfg.Gemini.MaxAttempts, "PODCAST_GEMINI_MAX_ATTEMPTS")
	overrideInt(&cfg.Gemini.TimeoutSec, "PODCAST_GEMINI_TIMEOUT_SECONDS")
	overrideString(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	overrideString(&cfg.Script.Provider, "PODCAST_SCRIPT_PROVIDER")
	overrideString(&cfg.Script.Model, "PODCAST_SCRIPT_MODEL")
	overrideFloat(&cfg.Script.Temperature, "PODCAST_SCRIPT_TEMPERATURE")
	overrideInt(&cfg.Script.MaxPartChars, "PODCAST_SCRIPT_MAX_PART_CHARS")
	overrideString(&cfg.Script.Language, "PODCAST_SCRIPT_LANGUAGE")
	overrideString(&cfg.Speech.Provider, "PODCAST_SPEECH_PROVIDER")
	overrideString(&cfg.Speech.Model, "PODCAST_SPEECH_MODEL")
	overrideFloat(&cfg.Speech.Temperature, "PODCAST_SPEECH_TEMPERATURE")
	overrideString(&cfg.Speech.LanguageCode, "PODCAST_SPEECH_LANGUAGE_CODE")
	overrideSpeakers(&cfg.Speech.Speakers, "PODCAST_SPEECH_VOICES")
	overrideString(&cfg.Pipeline.Mode, "PODCAST_PIPELINE_MODE")
	overrideInt(&cfg.Pipeline.ScriptWorkers, "PODCAST_PIPELINE_SCRIPT_WORKERS")
	overrideInt(&cfg.Pipeline.SpeechWorkers, "PODCAST_PIPELINE_SPEECH_WORKERS")
	overrideFloat(&cfg.Pipeline.ScriptShare, "PODCAST_PIPELINE_SCRIPT_SHARE")
	overrideString(&cfg.Pipeline.WorkDir, "PODCAST_PIPELINE_WORK_DIR")
	overrideInt(&cfg.Pipeline.GapMS, "PODCAST_PIPELINE_GAP_MS")
	overrideString(&cfg.Segment.FreeTalkMarker, "PODCAST_SEGMENT_FREE_TALK_MARKER")
	overrideString(&cfg.Segment.LinksMarker, "PODCAST_SEGMENT_LINKS_MARKER")
	overrideString(&cfg.Store.Backend, "PODCAST_STORE_BACKEND")
	overrideString(&cfg.Store.Dir, "PODCAST_STORE_DIR")
	overrideString(&cfg.Store.Path, "PODCAST_STORE_PATH")
	overrideString(&cfg.Store.Table, "DYNAMODB_TABLE")
	overrideString(&cfg.Storage.ResultDir, "PODCAST_RESULT_DIR")
	overrideString(&cfg.Storage.S3Bucket, "S3_BUCKET")
	overrideString(&cfg.Storage.S3Prefix, "PODCAST_S3_PREFIX")
	overrideString(&cfg.Storage.CDNBaseURL, "CDN_BASE_URL")
	overrideString(&cfg.Queue.Backend, "PODCAST_QUEUE_BACKEND")
	overrideInt(&cfg.Queue.Workers, "PODCAST_QUEUE_WORKERS")
	overrideInt(&cfg.Queue.Capacity, "PODCAST_QUEUE_CAPACITY")
	overrideStringSlice(&cfg.Queue.NATS.Servers, "PODCAST_NATS_SERVERS")
	overrideString(&cfg.Queue.NATS.Subject, "PODCAST_NATS_SUBJECT")
	overrideString(&cfg.Queue.NATS.Stream, "PODCAST_NATS_STREAM")
	overrideString(&cfg.Queue.NATS.QueueGroup, "PODCAST_NATS_QUEUE_GROUP")
	overrideString(&cfg.Queue.NATS.StoreDir, "PODCAST_NATS_STORE_DIR")
	overrideBool(&cfg.Queue.NATS.Embedded, "PODCAST_NATS_EMBEDDED")
	overrideInt(&cfg.Queue.NATS.Port, "PODCAST_NATS_PORT")
	overrideString(&cfg.Queue.NATS.Token, "PODCAST_NATS_TOKEN")
	overrideString(&cfg.AWS.Region, "AWS_REGION")
	overrideString(&cfg.AWS.SecretPrefix, "SECRET_PREFIX")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

// overrideSpeakers parses "Name=Voice,Name=Voice".
func overrideSpeakers(target *[]SpeakerConfig, envKey string) {
	value, ok := os.LookupEnv(envKey)
	if !ok {
		return
	}
	var speakers []SpeakerConfig
	for _, pair := range strings.Split(value, ",") {
		name, voice, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || name == "" || voice == "" {
			return
		}
		sc := SpeakerConfig{Name: name, Voice: voice}
		for _, existing := range *target {
			if existing.Name == name {
				sc.Role = existing.Role
			}
		}
		speakers = append(speakers, sc)
	}
	if len(speakers) > 0 {
		*target = speakers
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.MaxUploadMB <= 0 {
		return errors.New("http.max_upload_mb must be positive")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "otlp", "stdout":
	default:
		return fmt.Errorf("telemetry.trace_exporter %q must be none, otlp or stdout", cfg.Telemetry.TraceExporter)
	}
	switch cfg.Script.Provider {
	case "gemini", "claude", "nova":
	default:
		return fmt.Errorf("script.provider %q must be gemini, claude or nova", cfg.Script.Provider)
	}
	if cfg.Script.MaxPartChars <= 0 {
		return errors.New("script.max_part_chars must be positive")
	}
	switch cfg.Speech.Provider {
	case "gemini", "cloud":
	default:
		return fmt.Errorf("speech.provider %q must be gemini or cloud", cfg.Speech.Provider)
	}
	if len(cfg.Speech.Speakers) == 0 || len(cfg.Speech.Speakers) > 2 {
		return errors.New("speech.speakers must name one or two speakers")
	}
	for _, s := range cfg.Speech.Speakers {
		if s.Name == "" || s.Voice == "" {
			return errors.New("speech.speakers entries need a name and a voice")
		}
	}
	switch cfg.Pipeline.Mode {
	case "sequential", "parallel":
	default:
		return fmt.Errorf("pipeline.mode %q must be sequential or parallel", cfg.Pipeline.Mode)
	}
	if cfg.Pipeline.ScriptWorkers < 1 || cfg.Pipeline.SpeechWorkers < 1 {
		return errors.New("pipeline workers must be at least 1")
	}
	if cfg.Pipeline.ScriptShare <= 0 || cfg.Pipeline.ScriptShare >= 0.8 {
		return errors.New("pipeline.script_share must be in (0, 0.8)")
	}
	if cfg.Pipeline.GapMS < 0 {
		return errors.New("pipeline.gap_ms must not be negative")
	}
	switch cfg.Store.Backend {
	case "memory", "file", "sqlite", "dynamodb":
	default:
		return fmt.Errorf("store.backend %q must be memory, file, sqlite or dynamodb", cfg.Store.Backend)
	}
	if cfg.Storage.ResultDir == "" {
		return errors.New("storage.result_dir must not be empty")
	}
	switch cfg.Queue.Backend {
	case "local", "nats":
	default:
		return fmt.Errorf("queue.backend %q must be local or nats", cfg.Queue.Backend)
	}
	if cfg.Queue.Workers < 1 || cfg.Queue.Capacity < 1 {
		return errors.New("queue.workers and queue.capacity must be at least 1")
	}
	if cfg.Queue.Backend == "nats" && (cfg.Queue.NATS.Subject == "" || cfg.Queue.NATS.Stream == "" || cfg.Queue.NATS.QueueGroup == "") {
		return errors.New("queue.nats subject, stream and queue_group must be set")
	}
	return nil
}

// RequireCredentials checks that the configured providers can authenticate.
func (c Config) RequireCredentials() error {
	needsGeminiKey := c.Gemini.Backend != "vertex" &&
		(c.Script.Provider == "gemini" || c.Speech.Provider == "gemini")
	if needsGeminiKey && c.Gemini.APIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingCredential)
	}
	if c.Gemini.Backend == "vertex" && c.Gemini.Project == "" {
		return fmt.Errorf("%w: GCP_PROJECT is required for the vertex backend", ErrMissingCredential)
	}
	if c.Script.Provider == "claude" && c.Anthropic.APIKey == "" {
		return fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", ErrMissingCredential)
	}
	return nil
}

// VoiceMap returns speaker name to voice name.
func (s SpeechConfig) VoiceMap() map[string]string {
	m := make(map[string]string, len(s.Speakers))
	for _, sp := range s.Speakers {
		m[sp.Name] = sp.Voice
	}
	return m
}
