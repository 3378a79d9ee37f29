// Package handlers wires the HTTP surface: signed webhook consumers on
// one side, JWT-authenticated user actions on the other.
package handlers

import (
	"github.com/prometheus/client_golang/prometheus"

	"harborcast/internal/ingress"
	"harborcast/internal/livekit"
	"harborcast/internal/razorpay"
	"harborcast/internal/reconcile"
	"harborcast/internal/store"
	"harborcast/pkg/logging"
)

var (
	db              *store.Store
	logger          logging.Logger
	metrics         *HarborMetrics
	resolver        *reconcile.Resolver
	engine          *reconcile.Engine
	publisher       reconcile.Publisher
	webhookReceiver *livekit.WebhookReceiver
	gateway         *razorpay.Client
	ingressManager  *ingress.Manager
	mediaAPIKey     string
	mediaAPISecret  string
)

// HarborMetrics holds all Prometheus metrics for the service.
type HarborMetrics struct {
	WebhookEvents     *prometheus.CounterVec
	SignatureFailures *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	IngressReissues   *prometheus.CounterVec
	OrdersCreated     *prometheus.CounterVec
	DBQueries         *prometheus.CounterVec
	DBDuration        *prometheus.HistogramVec
	DBConnections     *prometheus.GaugeVec
}

// Deps carries everything the handlers need. Components are constructed
// in main and injected here once at startup.
type Deps struct {
	Store           *store.Store
	Logger          logging.Logger
	Metrics         *HarborMetrics
	Resolver        *reconcile.Resolver
	Engine          *reconcile.Engine
	Publisher       reconcile.Publisher
	WebhookReceiver *livekit.WebhookReceiver
	Gateway         *razorpay.Client
	IngressManager  *ingress.Manager
	MediaAPIKey     string
	MediaAPISecret  string
}

// Init initializes the handlers with their dependencies.
func Init(deps Deps) {
	db = deps.Store
	logger = deps.Logger
	metrics = deps.Metrics
	resolver = deps.Resolver
	engine = deps.Engine
	publisher = deps.Publisher
	webhookReceiver = deps.WebhookReceiver
	gateway = deps.Gateway
	ingressManager = deps.IngressManager
	mediaAPIKey = deps.MediaAPIKey
	mediaAPISecret = deps.MediaAPISecret
}

func countWebhook(source, result string) {
	if metrics != nil && metrics.WebhookEvents != nil {
		metrics.WebhookEvents.WithLabelValues(source, result).Inc()
	}
}

func countSignatureFailure(source string) {
	if metrics != nil && metrics.SignatureFailures != nil {
		metrics.SignatureFailures.WithLabelValues(source).Inc()
	}
}

func countTransition(entity, kind string) {
	if metrics != nil && metrics.Transitions != nil {
		metrics.Transitions.WithLabelValues(entity, kind).Inc()
	}
}
