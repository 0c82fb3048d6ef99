// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_voice_gateway"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal    prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionsClosed   *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	SessionsRejected prometheus.Counter
	StateTransitions *prometheus.CounterVec
	TurnsAppended    *prometheus.CounterVec
	ProtocolErrors   *prometheus.CounterVec

	// Transcript metrics
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	PartialsSuppressed prometheus.Counter

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter
	AudioFramesDropped  *prometheus.CounterVec
	DeviceOverflows     prometheus.Counter

	// Generation metrics
	GenerationDuration *prometheus.HistogramVec
	GenerationOutcomes *prometheus.CounterVec
	GenerationChunks   prometheus.Counter

	// Retrieval metrics
	RetrievalLatency      prometheus.Histogram
	RetrievalResults      prometheus.Histogram
	RetrievalDegradations *prometheus.CounterVec
	EmbeddingCacheHits    *prometheus.CounterVec

	// Ingestion metrics
	DocumentsIngested *prometheus.CounterVec
	ChunksIngested    prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// STT metrics
	STTErrors         *prometheus.CounterVec
	STTUtteranceCount prometheus.Counter

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec

	// Backpressure metrics
	StreamLimitExceeded *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions opened",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently open sessions",
		}),
		SessionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of sessions closed, by reason",
		}, []string{"reason"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of sessions in seconds",
			Buckets:   []float64{1, 5, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		SessionsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rejected_total",
			Help:      "Total number of connections rejected because the registry was full",
		}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of session state transitions",
		}, []string{"from", "to"}),
		TurnsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_appended_total",
			Help:      "Total number of conversation turns appended",
		}, []string{"role", "source"}),
		ProtocolErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of rejected inbound messages",
		}, []string{"kind"}),

		// Transcript metrics
		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcripts forwarded to clients",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts received",
		}),
		PartialsSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partials_suppressed_total",
			Help:      "Total number of duplicate or empty partial transcripts suppressed",
		}),

		// Audio metrics
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes read from capture devices",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames read from capture devices",
		}),
		AudioFramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Total audio frames dropped before reaching the transcriber",
		}, []string{"reason"}),
		DeviceOverflows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_overflows_total",
			Help:      "Total number of capture device overflow conditions",
		}),

		// Generation metrics
		GenerationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall-clock duration of the Generating state",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 240},
		}, []string{"backend"}),
		GenerationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_outcomes_total",
			Help:      "Total number of generations by outcome",
		}, []string{"backend", "outcome"}),
		GenerationChunks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_chunks_total",
			Help:      "Total number of response chunks streamed to clients",
		}),

		// Retrieval metrics
		RetrievalLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_latency_seconds",
			Help:      "Latency of retrieval augmentation",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		RetrievalResults: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Number of retrieved chunks used per prompt",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		RetrievalDegradations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_degradations_total",
			Help:      "Total number of prompts built without retrieval because of upstream failure",
		}, []string{"stage"}),
		EmbeddingCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result",
		}, []string{"result"}),

		// Ingestion metrics
		DocumentsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Total number of documents ingested, by source and status",
		}, []string{"source", "status"}),
		ChunksIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Total number of document chunks added to the vector store",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// STT metrics
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of STT errors",
		}, []string{"provider", "error_type"}),
		STTUtteranceCount: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_utterances_total",
			Help:      "Total number of utterance boundaries reported by the engine",
		}),

		// gRPC metrics
		GRPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC requests",
		}, []string{"method", "code"}),

		// Backpressure metrics
		StreamLimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_limit_exceeded_total",
			Help:      "Total number of times transcription stream limits were exceeded",
		}, []string{"limit_type"}),
	}
}

// RecordSessionOpened records a new session.
func (m *Metrics) RecordSessionOpened() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionClosed records a session ending.
func (m *Metrics) RecordSessionClosed(reason string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionRejected records a connection refused for capacity.
func (m *Metrics) RecordSessionRejected() {
	m.SessionsRejected.Inc()
}

// RecordTransition records a session state transition.
func (m *Metrics) RecordTransition(from, to string) {
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordTurn records a turn appended to a conversation.
func (m *Metrics) RecordTurn(role, source string) {
	m.TurnsAppended.WithLabelValues(role, source).Inc()
}

// RecordProtocolError records a rejected inbound message.
func (m *Metrics) RecordProtocolError(kind string) {
	m.ProtocolErrors.WithLabelValues(kind).Inc()
}

// RecordPartialTranscript records a partial transcript forwarded to a client.
func (m *Metrics) RecordPartialTranscript() {
	m.TranscriptsPartial.Inc()
}

// RecordPartialSuppressed records a duplicate or empty partial.
func (m *Metrics) RecordPartialSuppressed() {
	m.PartialsSuppressed.Inc()
}

// RecordFinalTranscript records a final transcript received.
func (m *Metrics) RecordFinalTranscript() {
	m.TranscriptsFinal.Inc()
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordFrameDropped records an audio frame dropped before transcription.
func (m *Metrics) RecordFrameDropped(reason string) {
	m.AudioFramesDropped.WithLabelValues(reason).Inc()
}

// RecordDeviceOverflow records a recoverable capture overflow.
func (m *Metrics) RecordDeviceOverflow() {
	m.DeviceOverflows.Inc()
}

// RecordGeneration records the outcome of a generation.
func (m *Metrics) RecordGeneration(backend, outcome string, durationSeconds float64) {
	m.GenerationOutcomes.WithLabelValues(backend, outcome).Inc()
	m.GenerationDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// RecordGenerationChunk records a chunk streamed to a client.
func (m *Metrics) RecordGenerationChunk() {
	m.GenerationChunks.Inc()
}

// RecordRetrieval records a completed augmentation.
func (m *Metrics) RecordRetrieval(results int, latencySeconds float64) {
	m.RetrievalLatency.Observe(latencySeconds)
	m.RetrievalResults.Observe(float64(results))
}

// RecordRetrievalDegraded records an augmentation that fell back to no context.
func (m *Metrics) RecordRetrievalDegraded(stage string) {
	m.RetrievalDegradations.WithLabelValues(stage).Inc()
}

// RecordEmbeddingCache records an embedding cache lookup.
func (m *Metrics) RecordEmbeddingCache(hit bool) {
	if hit {
		m.EmbeddingCacheHits.WithLabelValues("hit").Inc()
		return
	}
	m.EmbeddingCacheHits.WithLabelValues("miss").Inc()
}

// RecordDocumentIngested records a document ingestion attempt.
func (m *Metrics) RecordDocumentIngested(source, status string, chunks int) {
	m.DocumentsIngested.WithLabelValues(source, status).Inc()
	m.ChunksIngested.Add(float64(chunks))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTTError records an STT error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordUtterance records an utterance boundary detection.
func (m *Metrics) RecordUtterance() {
	m.STTUtteranceCount.Inc()
}

// RecordGRPCRequest records a handled gRPC request.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}

// RecordLimitExceeded records when a stream limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.StreamLimitExceeded.WithLabelValues(limitType).Inc()
}
