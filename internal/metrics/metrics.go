// Package metrics holds the prometheus counters shared by the studio gateway
// and the reference backend.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

var (
	StudioSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_studio_sends_total",
			Help: "Chat sends started by the studio, by outcome.",
		},
		[]string{"outcome"},
	)

	StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_studio_stream_events_total",
			Help: "Stream events applied to the message list, by event name.",
		},
		[]string{"event"},
	)

	StudioUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_studio_uploads_total",
			Help: "Attachment uploads issued by the studio, by outcome.",
		},
		[]string{"outcome"},
	)

	HistoryLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_studio_history_loads_total",
			Help: "Chat history loads, by outcome.",
		},
		[]string{"outcome"},
	)

	BackendStreams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_backend_streams_total",
			Help: "Chat streams served by the backend, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	BackendUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ugc_backend_uploads_total",
			Help: "Files accepted or rejected by the backend upload endpoint.",
		},
		[]string{"outcome"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ugc_backend_rate_limited_total",
			Help: "Requests rejected by the backend rate limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(StudioSends)
	prometheus.MustRegister(StreamEvents)
	prometheus.MustRegister(StudioUploads)
	prometheus.MustRegister(HistoryLoads)
	prometheus.MustRegister(BackendStreams)
	prometheus.MustRegister(BackendUploads)
	prometheus.MustRegister(RateLimited)
}

// Handler exposes the default registry on a gin route.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
