package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apolo_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apolo_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	LeadsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "apolo_leads_detected_total",
			Help: "Total leads extracted from answers",
		},
	)

	ImagesSurfaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apolo_images_surfaced_total",
			Help: "Total images surfaced alongside answers",
		},
		[]string{"strategy"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apolo_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	VectorResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apolo_vector_results_count",
			Help:    "Number of vector results per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "apolo_active_sessions",
			Help: "Number of live conversation sessions",
		},
	)

	CorpusChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "apolo_corpus_chunks_total",
			Help: "Chunks loaded into the vector index",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(LeadsDetected)
	prometheus.MustRegister(ImagesSurfaced)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(VectorResultsCount)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(CorpusChunks)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
