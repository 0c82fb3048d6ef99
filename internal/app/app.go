package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-voice-gateway/internal/config"
	"ai-voice-gateway/internal/events"
	"ai-voice-gateway/internal/gateway"
	httpapi "ai-voice-gateway/internal/http"
	"ai-voice-gateway/internal/observability"
	"ai-voice-gateway/internal/observability/logging"
	"ai-voice-gateway/internal/observability/metrics"
	"ai-voice-gateway/internal/observability/tracing"
	"ai-voice-gateway/internal/service/audio"
	"ai-voice-gateway/internal/service/capture"
	"ai-voice-gateway/internal/service/generation"
	genmock "ai-voice-gateway/internal/service/generation/mock"
	"ai-voice-gateway/internal/service/ingest"
	"ai-voice-gateway/internal/service/registry"
	"ai-voice-gateway/internal/service/retrieval"
	"ai-voice-gateway/internal/service/session"
	"ai-voice-gateway/internal/service/stt"
	sttgoogle "ai-voice-gateway/internal/service/stt/google"
	sttmock "ai-voice-gateway/internal/service/stt/mock"
	"ai-voice-gateway/internal/service/vectorstore"
)

// HealthServiceName is the gRPC health service reported alongside "".
const HealthServiceName = "ai.voice.gateway.ConversationGateway"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	sttProvider stt.Provider
	vectors     *vectorstore.Client
	publisher   *events.Publisher
	watcher     *ingest.Watcher
	registry    *registry.Registry
	gateway     *gateway.Server

	httpServer   *http.Server
	grpcServer   *grpc.Server
	healthServer *health.Server
	obsServer    *observability.Server
}

// New configures logging and builds every component from cfg. Nothing
// listens until Start.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
		File:       cfg.Observability.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	})

	a := &Application{
		Cfg: cfg,
		Logger: log.Logger.With().
			Str("service", cfg.Service.Name).
			Str("component", "application").
			Logger(),
	}

	if err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.Service.Name,
		Endpoint:    cfg.Observability.OTLPEndpoint,
	}); err != nil {
		a.Logger.Warn().Err(err).Msg("Tracing init failed, continuing without traces")
	}

	if err := a.build(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.Logger.Info().
		Str("environment", cfg.Service.Environment).
		Str("stt", cfg.STT.Provider).
		Str("llm", cfg.LLM.Provider).
		Str("vectorStore", cfg.VectorStore.Driver).
		Str("capture", cfg.Capture.Source).
		Msg("AI voice gateway application created")
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg := a.Cfg

	provider, err := newSTTProvider(ctx, cfg.STT)
	if err != nil {
		return err
	}
	a.sttProvider = provider

	backend, err := newBackend(cfg.LLM)
	if err != nil {
		return err
	}

	vectors, err := newVectorStore(ctx, cfg.Embedding, cfg.VectorStore)
	if err != nil {
		return err
	}
	a.vectors = vectors

	ingestor := ingest.New(vectors, ingest.Config{
		UploadDir:         cfg.Ingest.UploadDir,
		ChunkWords:        cfg.Ingest.ChunkWords,
		AllowedExtensions: cfg.Ingest.AllowedExtensions,
		MaxFileBytes:      cfg.Ingest.MaxFileBytes,
	})
	if cfg.Ingest.WatchDir != "" {
		w, err := ingest.NewWatcher(ingestor, cfg.Ingest.WatchDir, 0)
		if err != nil {
			return fmt.Errorf("watch %s: %w", cfg.Ingest.WatchDir, err)
		}
		a.watcher = w
	}

	a.publisher = events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicTurn:       cfg.Kafka.TopicTurn,
		Principal:       cfg.Kafka.Principal,
	})

	deps := session.Deps{
		Transcriber: audio.NewTranscriber(provider, audio.Limits{
			MaxAudioBytes: cfg.StreamLimits.MaxAudioBytes,
			MaxDuration:   cfg.StreamLimits.MaxDuration,
			MaxPartials:   cfg.StreamLimits.MaxPartials,
		}),
		Augmenter: retrieval.New(vectors, retrieval.Config{
			TopK:     cfg.Session.RetrievalTopK,
			Timeout:  cfg.Session.RetrievalTimeout,
			MinScore: cfg.Session.RetrievalMinScore,
		}),
		Generator: generation.New(backend),
		Ingester:  ingestor,
		Publisher: a.publisher,
	}

	clientAudio := true
	switch cfg.Capture.Source {
	case "client":
	case "wav":
		dev, err := capture.NewFileDevice(cfg.Capture.WAVPath, cfg.Capture.FrameBytes)
		if err != nil {
			return fmt.Errorf("capture device: %w", err)
		}
		deps.Device = dev
		clientAudio = false
	default:
		return fmt.Errorf("unknown capture source %q", cfg.Capture.Source)
	}

	a.registry = registry.New(registry.Config{
		MaxSessions:       cfg.Session.MaxSessions,
		InactivityTimeout: cfg.Session.InactivityTimeout,
		SweepSchedule:     cfg.Session.SweepSchedule,
		Session: session.Config{
			GenerationTimeout: cfg.Session.GenerationTimeout,
			SilenceFrames:     cfg.Session.SilenceFrames,
			StopPhrases:       cfg.Session.StopPhrases,
			RetrievalTopK:     cfg.Session.RetrievalTopK,
			InboundQueue:      cfg.Gateway.InboundQueue,
			OutboundQueue:     cfg.Gateway.OutboundQueue,
		},
	}, deps)

	a.gateway = gateway.NewServer(gateway.Config{
		HeartbeatInterval: cfg.Gateway.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Gateway.HeartbeatTimeout,
		WriteTimeout:      cfg.Gateway.WriteTimeout,
		CloseTimeout:      cfg.Gateway.CloseTimeout,
		MaxMessageBytes:   cfg.Gateway.MaxMessageBytes,
		AllowedOrigins:    cfg.Gateway.AllowedOrigins,
		ClientAudio:       clientAudio,
		Capture: capture.ClientConfig{
			BufferFrames: cfg.Capture.BufferFrames,
			ReadTimeout:  cfg.Capture.ReadTimeout,
		},
	}, a.registry)

	a.httpServer = &http.Server{
		Addr: ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(httpapi.Handlers{
			WSPath:       cfg.Gateway.Path,
			Gateway:      a.gateway,
			Sessions:     a.registry,
			Ingester:     ingestor,
			MaxFileBytes: cfg.Ingest.MaxFileBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	m := metrics.DefaultMetrics
	a.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)
	a.healthServer = health.NewServer()
	grpc_health_v1.RegisterHealthServer(a.grpcServer, a.healthServer)
	reflection.Register(a.grpcServer)

	if cfg.Observability.MetricsPort != "" {
		a.obsServer = observability.NewServer(":"+cfg.Observability.MetricsPort, a.registry.Ready)
	}
	return nil
}

func newSTTProvider(ctx context.Context, cfg config.STTConfig) (stt.Provider, error) {
	switch cfg.Provider {
	case "mock", "":
		return sttmock.NewProvider(100 * time.Millisecond), nil
	case "google":
		p, err := sttgoogle.NewProvider(ctx, sttgoogle.Config{
			LanguageCode:   cfg.LanguageCode,
			SampleRateHz:   cfg.SampleRateHz,
			InterimResults: cfg.InterimResults,
			AudioEncoding:  cfg.AudioEncoding,
		})
		if err != nil {
			return nil, fmt.Errorf("google speech: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.Provider)
	}
}

func newBackend(cfg config.LLMConfig) (generation.Backend, error) {
	switch cfg.Provider {
	case "ollama", "":
		return generation.NewOllamaBackend(cfg.BaseURL, cfg.Model), nil
	case "openai":
		return generation.NewOpenAIBackend(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	case "anthropic":
		return generation.NewAnthropicBackend(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	case "mock":
		return &genmock.Backend{}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func newVectorStore(ctx context.Context, ecfg config.EmbeddingConfig, vcfg config.VectorStoreConfig) (*vectorstore.Client, error) {
	var embedder vectorstore.Embedder
	switch ecfg.Provider {
	case "ollama", "":
		embedder = vectorstore.NewOllamaEmbedder(ecfg.BaseURL, ecfg.Model)
	case "openai":
		embedder = vectorstore.NewOpenAIEmbedder(ecfg.APIKey, ecfg.BaseURL, ecfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", ecfg.Provider)
	}
	if ecfg.CacheTTL >= 0 {
		embedder = vectorstore.NewCachedEmbedder(embedder, ecfg.CacheTTL)
	}

	var index vectorstore.Index
	switch vcfg.Driver {
	case "sqlite", "":
		idx, err := vectorstore.OpenSQLiteIndex(vcfg.Path, ecfg.Dimension)
		if err != nil {
			return nil, err
		}
		index = idx
	case "postgres":
		idx, err := vectorstore.OpenPostgresIndex(ctx, vcfg.DSN, ecfg.Dimension)
		if err != nil {
			return nil, err
		}
		index = idx
	case "memory":
		index = vectorstore.NewMemoryIndex(ecfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown vector store driver %q", vcfg.Driver)
	}
	return vectorstore.NewClient(embedder, index), nil
}

// Start begins serving websocket, HTTP, gRPC and observability traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()

	if err := a.registry.Start(); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	a.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	a.healthServer.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	go func() {
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			startLogger.Error().Err(err).Msg("gRPC serve failed")
		}
	}()

	if a.obsServer != nil {
		a.obsServer.Start()
	}

	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			startLogger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("httpPort", a.Cfg.Service.HTTPPort).
		Str("grpcPort", a.Cfg.Service.GRPCPort).
		Str("wsPath", a.Cfg.Gateway.Path).
		Msg("AI voice gateway starting")
	return nil
}

// Shutdown closes every session with the shutdown cause, then stops the
// listeners and releases backends.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Int("sessions", a.registry.Len()).Msg("AI voice gateway shutting down")

	a.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	a.healthServer.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	if err := a.registry.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Sessions did not close in time")
	}

	if err := a.httpServer.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("HTTP server shutdown error")
	}
	waitCtx(ctx, a.gateway.Wait)

	stopped := make(chan struct{})
	go func() {
		a.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		a.grpcServer.Stop()
	}

	if a.obsServer != nil {
		if err := a.obsServer.Shutdown(ctx); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Observability server shutdown error")
		}
	}

	a.close()
	if err := tracing.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Tracing shutdown error")
	}
	shutdownLogger.Info().Msg("Shutdown complete")
}

// close releases backends built so far.
func (a *Application) close() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Watcher stop error")
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Publisher close error")
		}
	}
	if a.vectors != nil {
		if err := a.vectors.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Vector store close error")
		}
	}
	if c, ok := a.sttProvider.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("STT provider close error")
		}
	}
}

func waitCtx(ctx context.Context, fn func()) {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
