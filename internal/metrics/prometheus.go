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
			Name:    "insight_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"intent"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	IntentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_intent_total",
			Help: "Classified intents",
		},
		[]string{"intent"},
	)

	LLMCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_llm_call_duration_seconds",
			Help:    "Model call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend", "kind"},
	)

	LLMCallTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_llm_call_total",
			Help: "Total model calls",
		},
		[]string{"backend", "kind", "status"},
	)

	// LLMBreakerState is 0 closed, 1 half-open, 2 open.
	LLMBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "insight_llm_breaker_state",
			Help: "Circuit breaker state per backend",
		},
		[]string{"backend"},
	)

	PlotTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_plot_total",
			Help: "Plot synthesis outcomes",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_ida_documents_processed_total",
			Help: "Documents processed by the IDA extraction job",
		},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(IntentTotal)
	prometheus.MustRegister(LLMCallDuration)
	prometheus.MustRegister(LLMCallTotal)
	prometheus.MustRegister(LLMBreakerState)
	prometheus.MustRegister(PlotTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsProcessed)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
