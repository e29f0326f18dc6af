package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BotDispatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrentcast",
		Name:      "bot_dispatches_total",
		Help:      "Total conversational dispatches by state.",
	}, []string{"state"})

	BotAuthFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrentcast",
		Name:      "bot_auth_failures_total",
		Help:      "Total failed password authentication attempts.",
	})

	BotSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "torrentcast",
		Name:      "bot_sessions_active",
		Help:      "Number of conversations with live per-user state.",
	})

	MediaRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrentcast",
		Name:      "media_requests_total",
		Help:      "Total media server requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	MediaRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "torrentcast",
		Name:      "media_request_duration_seconds",
		Help:      "Media server request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "route"})

	MediaBytesServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrentcast",
		Name:      "media_bytes_served_total",
		Help:      "Total file bytes written to media clients.",
	})

	NotifyDispatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrentcast",
		Name:      "notify_dispatches_total",
		Help:      "Total inbound NOTIFY requests by dispatch outcome.",
	}, []string{"outcome"})

	CastTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrentcast",
		Name:      "cast_transitions_total",
		Help:      "Total cast state machine transitions by target state.",
	}, []string{"state"})

	SOAPCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "torrentcast",
		Name:      "soap_calls_total",
		Help:      "Total outbound SOAP actions by action name and outcome.",
	}, []string{"action", "outcome"})

	ConversionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "torrentcast",
		Name:      "conversions_active",
		Help:      "Number of currently running ffmpeg conversion jobs.",
	})

	ConversionStartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrentcast",
		Name:      "conversion_starts_total",
		Help:      "Total number of conversion jobs started.",
	})

	ConversionFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "torrentcast",
		Name:      "conversion_failures_total",
		Help:      "Total number of conversion job failures.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		BotDispatchesTotal,
		BotAuthFailuresTotal,
		BotSessionsActive,
		MediaRequestsTotal,
		MediaRequestDuration,
		MediaBytesServedTotal,
		NotifyDispatchesTotal,
		CastTransitionsTotal,
		SOAPCallsTotal,
		ConversionsActive,
		ConversionStartsTotal,
		ConversionFailuresTotal,
	)
}
