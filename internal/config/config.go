// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the complete service configuration.
type Config struct {
	Service       ServiceConfig
	Gateway       GatewayConfig
	Session       SessionConfig
	Capture       CaptureConfig
	STT           STTConfig
	StreamLimits  StreamLimitsConfig
	LLM           LLMConfig
	Embedding     EmbeddingConfig
	VectorStore   VectorStoreConfig
	Ingest        IngestConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the service and its listening ports.
type ServiceConfig struct {
	Name        string
	Principal   string
	Environment string
	HTTPPort    string
	GRPCPort    string
}

// GatewayConfig holds websocket connection lifecycle parameters.
type GatewayConfig struct {
	Path              string
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	WriteTimeout      time.Duration
	CloseTimeout      time.Duration
	MaxMessageBytes   int64
	OutboundQueue     int
	InboundQueue      int
	AllowedOrigins    []string
}

// SessionConfig holds state machine and registry parameters.
type SessionConfig struct {
	InactivityTimeout time.Duration
	GenerationTimeout time.Duration
	SilenceFrames     int
	StopPhrases       []string
	MaxSessions       int
	SweepSchedule     string
	RetrievalTopK     int
	RetrievalTimeout  time.Duration
	RetrievalMinScore float64
}

// CaptureConfig selects and tunes the audio capture device.
type CaptureConfig struct {
	Source       string // client, wav
	WAVPath      string
	FrameBytes   int
	ReadTimeout  time.Duration
	BufferFrames int
}

// STTConfig selects and tunes the speech-to-text engine.
type STTConfig struct {
	Provider       string // mock, google
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// StreamLimitsConfig bounds a single transcription stream.
type StreamLimitsConfig struct {
	MaxAudioBytes int64
	MaxDuration   time.Duration
	MaxPartials   int
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Provider    string // ollama, openai, anthropic, mock
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Provider  string // ollama, openai
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
	CacheTTL  time.Duration
}

// VectorStoreConfig selects the similarity index.
type VectorStoreConfig struct {
	Driver string // sqlite, postgres, memory
	Path   string
	DSN    string
}

// IngestConfig controls document ingestion.
type IngestConfig struct {
	UploadDir         string
	WatchDir          string
	ChunkWords        int
	AllowedExtensions []string
	MaxFileBytes      int64
}

// KafkaConfig controls conversation event publishing.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicTurn       string
	Principal       string
}

// ObservabilityConfig controls logging, metrics and tracing.
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	LogFile        string
	MetricsPort    string
	TracingEnabled bool
	OTLPEndpoint   string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; variables already set win.
func Load() *Config {
	_ = godotenv.Load()

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-voice-gateway")

	return &Config{
		Service: ServiceConfig{
			Name:        envOrDefault("SERVICE_NAME", "ai-voice-gateway"),
			Principal:   principal,
			Environment: os.Getenv("ENV"),
			HTTPPort:    envOrDefault("HTTP_PORT", "8765"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
		},
		Gateway: GatewayConfig{
			Path:              envOrDefault("WS_PATH", "/ws"),
			HeartbeatInterval: envOrDefaultDuration("WS_HEARTBEAT_INTERVAL", 30*time.Second),
			HeartbeatTimeout:  envOrDefaultDuration("WS_HEARTBEAT_TIMEOUT", 90*time.Second),
			WriteTimeout:      envOrDefaultDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			CloseTimeout:      envOrDefaultDuration("WS_CLOSE_TIMEOUT", 10*time.Second),
			MaxMessageBytes:   envOrDefaultInt64("WS_MAX_MESSAGE_BYTES", 16*1024*1024),
			OutboundQueue:     envOrDefaultInt("WS_OUTBOUND_QUEUE", 256),
			InboundQueue:      envOrDefaultInt("WS_INBOUND_QUEUE", 32),
			AllowedOrigins:    envOrDefaultList("WS_ALLOWED_ORIGINS", nil),
		},
		Session: SessionConfig{
			InactivityTimeout: envOrDefaultDuration("SESSION_INACTIVITY_TIMEOUT", 400*time.Second),
			GenerationTimeout: envOrDefaultDuration("SESSION_GENERATION_TIMEOUT", 240*time.Second),
			SilenceFrames:     envOrDefaultInt("SESSION_SILENCE_FRAMES", 25),
			StopPhrases:       envOrDefaultList("SESSION_STOP_PHRASES", []string{"stop", "exit", "berhenti"}),
			MaxSessions:       envOrDefaultInt("SESSION_MAX", 1000),
			SweepSchedule:     envOrDefault("SESSION_SWEEP_SCHEDULE", "@every 30s"),
			RetrievalTopK:     envOrDefaultInt("RETRIEVAL_TOP_K", 3),
			RetrievalTimeout:  envOrDefaultDuration("RETRIEVAL_TIMEOUT", 10*time.Second),
			RetrievalMinScore: envOrDefaultFloat("RETRIEVAL_MIN_SCORE", 0),
		},
		Capture: CaptureConfig{
			Source:       envOrDefault("CAPTURE_SOURCE", "client"),
			WAVPath:      os.Getenv("CAPTURE_WAV_PATH"),
			FrameBytes:   envOrDefaultInt("CAPTURE_FRAME_BYTES", 4096),
			ReadTimeout:  envOrDefaultDuration("CAPTURE_READ_TIMEOUT", 250*time.Millisecond),
			BufferFrames: envOrDefaultInt("CAPTURE_BUFFER_FRAMES", 64),
		},
		STT: STTConfig{
			Provider:       envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
		},
		StreamLimits: StreamLimitsConfig{
			MaxAudioBytes: envOrDefaultInt64("STREAM_MAX_AUDIO_BYTES", 5*1024*1024),
			MaxDuration:   envOrDefaultDuration("STREAM_MAX_DURATION", 5*time.Minute),
			MaxPartials:   envOrDefaultInt("STREAM_MAX_PARTIALS", 500),
		},
		LLM: LLMConfig{
			Provider:    envOrDefault("LLM_PROVIDER", "ollama"),
			Model:       envOrDefault("LLM_MODEL", "phi4:latest"),
			BaseURL:     envOrDefault("LLM_BASE_URL", "http://localhost:11434"),
			APIKey:      os.Getenv("LLM_API_KEY"),
			MaxTokens:   envOrDefaultInt("LLM_MAX_TOKENS", 1024),
			Temperature: envOrDefaultFloat("LLM_TEMPERATURE", 0),
		},
		Embedding: EmbeddingConfig{
			Provider:  envOrDefault("EMBEDDING_PROVIDER", "ollama"),
			Model:     envOrDefault("EMBEDDING_MODEL", "nomic-embed-text"),
			BaseURL:   envOrDefault("EMBEDDING_BASE_URL", "http://localhost:11434"),
			APIKey:    os.Getenv("EMBEDDING_API_KEY"),
			Dimension: envOrDefaultInt("EMBEDDING_DIMENSION", 768),
			CacheTTL:  envOrDefaultDuration("EMBEDDING_CACHE_TTL", 10*time.Minute),
		},
		VectorStore: VectorStoreConfig{
			Driver: envOrDefault("VECTOR_STORE_DRIVER", "sqlite"),
			Path:   envOrDefault("VECTOR_STORE_PATH", "data/rag_docs.db"),
			DSN:    os.Getenv("VECTOR_STORE_DSN"),
		},
		Ingest: IngestConfig{
			UploadDir:         envOrDefault("INGEST_UPLOAD_DIR", "uploads"),
			WatchDir:          os.Getenv("INGEST_WATCH_DIR"),
			ChunkWords:        envOrDefaultInt("INGEST_CHUNK_WORDS", 1000),
			AllowedExtensions: envOrDefaultList("INGEST_ALLOWED_EXTENSIONS", []string{".txt", ".md"}),
			MaxFileBytes:      envOrDefaultInt64("INGEST_MAX_FILE_BYTES", 10*1024*1024),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "conversation.transcript.final"),
			TopicTurn:       envOrDefault("KAFKA_TOPIC_TURN", "conversation.turn"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:       envOrDefault("LOG_LEVEL", "info"),
			LogFormat:      envOrDefault("LOG_FORMAT", "json"),
			LogFile:        os.Getenv("LOG_FILE"),
			MetricsPort:    envOrDefault("METRICS_PORT", "9090"),
			TracingEnabled: envOrDefaultBool("TRACING_ENABLED", false),
			OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma-separated variable, dropping empty items.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
