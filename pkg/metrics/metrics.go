package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsProcessed counts per-record outcomes of the sync phases
	// object: companies/contacts, outcome: created/updated/would_create/would_update/failed
	RecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crmsync_records_processed_total",
		Help: "Records handled by the sync orchestrator by object type and outcome",
	}, []string{"object", "outcome"})

	// Associations counts contact -> company links written
	Associations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crmsync_associations_total",
		Help: "Contact to company associations created",
	})

	// PhaseDuration measures each sync phase. Slow company/contact phases usually mean
	// the CRM is throttling us
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crmsync_phase_duration_seconds",
		Help:    "Duration of a sync phase in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"phase"})

	// Runs counts finished sync runs. status: success, failed, conflict
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crmsync_runs_total",
		Help: "Sync runs by terminal status",
	}, []string{"status"})

	// CRMRequests tracks every remote call. status is the HTTP status or "error"
	CRMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crmsync_crm_requests_total",
		Help: "CRM API requests by operation and response status",
	}, []string{"operation", "status"})

	CRMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crmsync_crm_request_duration_seconds",
		Help:    "CRM API request latency, excluding the post-call rate limit pause",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// BreakerState 0 = closed, 1 = half-open, 2 = open
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crmsync_crm_breaker_state",
		Help: "Circuit breaker state of the CRM client",
	})

	// ReservationConflicts counts sync requests rejected because their scope was busy
	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crmsync_reservation_conflicts_total",
		Help: "Sync requests rejected by the reservation guard",
	})

	// ActiveReservations 1 while a full sync holds the guard; targeted ids are counted individually
	ActiveReservations = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crmsync_active_reservations",
		Help: "Current reservation state (global flag and number of reserved company ids)",
	}, []string{"scope"})

	DuplicateGroups = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crmsync_duplicate_groups",
		Help: "Duplicate groups found by the last scan per method",
	}, []string{"method"})

	// EventsPublished tracks the broker fan-out of sync events. status: sent, dropped, error
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crmsync_events_published_total",
		Help: "Sync events published to the message broker",
	}, []string{"status"})
)

// BrokerHealthy 1 while the RabbitMQ connection and channel are open
var BrokerHealthy = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "crmsync_broker_healthy",
	Help: "Health of the RabbitMQ event publisher connection",
})
