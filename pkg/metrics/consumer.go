package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventsConsumed counts sync events read back from the broker by the event tail
var EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "crmsync_events_consumed_total",
	Help: "Sync events consumed from the events exchange",
}, []string{"status"}) // status: success, error, malformed
