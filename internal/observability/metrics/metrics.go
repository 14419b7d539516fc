// Package metrics exposes the service's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pasar_notifications_emitted_total",
		Help: "Ledger notifications written, by action kind.",
	}, []string{"kind"})

	NotificationsPushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasar_notifications_pushed_total",
		Help: "Unread hints delivered to live subscribers.",
	})

	StreamConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pasar_stream_connections",
		Help: "Open notification stream connections.",
	})

	PostsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasar_posts_expired_total",
		Help: "Posts retired by the expiry sweeper.",
	})

	JoinRequestsLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pasar_join_requests_limited_total",
		Help: "Join requests rejected by the rate limiter.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pasar_http_requests_total",
		Help: "HTTP requests served, by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pasar_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
