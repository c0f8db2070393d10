package relaying

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesObservedCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_messages_observed_total",
		Help: "Escrow lock events ingested from the source chain",
	})
	messagesSettledCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_messages_settled_total",
		Help: "Messages settled back on the source chain",
	})
	rollbacksCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_messages_rolled_back_total",
		Help: "Messages rolled back after exhausting their retry budget",
	})
	transitionRetriesCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_transition_retries_total",
		Help: "State transition failures scheduled for retry",
	})
	sourcePollLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relayer_source_poll_latency_milliseconds",
		Help:    "Latency of one source chain poll pass",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	storeTotalMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_store_messages_total",
		Help: "Messages currently in the store",
	})
	storePendingMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_store_pending_messages",
		Help: "Messages in a non-terminal state",
	})
	storeSettledMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_store_settled_messages",
		Help: "Messages in the settled state",
	})
	storeFailedMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_store_failed_messages",
		Help: "Messages in the failed or rolled back states",
	})
	storeTotalRetries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_store_retries_total",
		Help: "Sum of retry counters across all messages",
	})
)

// refreshStoreMetrics republishes the store aggregates as gauges. Failures
// only cost a stale scrape, so they are logged and swallowed.
func (s *Service) refreshStoreMetrics(ctx context.Context) {
	m, err := s.cfg.Database.Metrics(ctx)
	if err != nil {
		log.WithError(err).Debug("Could not read store metrics")
		return
	}
	storeTotalMessages.Set(float64(m.Total))
	storePendingMessages.Set(float64(m.Pending))
	storeSettledMessages.Set(float64(m.Settled))
	storeFailedMessages.Set(float64(m.Failed))
	storeTotalRetries.Set(float64(m.TotalRetries))
}
