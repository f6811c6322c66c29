package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "proxygov"
	subsystem = "node"
)

// Metrics are the node's prometheus collectors.
type Metrics struct {
	blocks         prometheus.Counter
	height         prometheus.Gauge
	txs            *prometheus.CounterVec
	deferred       *prometheus.CounterVec
	mempoolSize    prometheus.Gauge
	pendingCalls   prometheus.Gauge
	rejectedSubmit prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_total",
			Help:      "Number of blocks produced.",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "height",
			Help:      "Height of the latest block.",
		}),
		txs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transactions_total",
			Help:      "Number of transactions applied, by status.",
		}, []string{"status"}),
		deferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deferred_calls_total",
			Help:      "Number of scheduled calls executed, by status.",
		}, []string{"status"}),
		mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mempool_size",
			Help:      "Number of transactions waiting in the mempool.",
		}),
		pendingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scheduled_calls_pending",
			Help:      "Number of scheduled calls that have not run yet.",
		}),
		rejectedSubmit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "submissions_rejected_total",
			Help:      "Number of submitted transactions rejected before the mempool.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.blocks, m.height, m.txs, m.deferred, m.mempoolSize, m.pendingCalls, m.rejectedSubmit,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}

func (m *Metrics) observeTx(ok bool) {
	m.txs.WithLabelValues(statusLabel(ok)).Inc()
}

func (m *Metrics) observeDeferred(ok bool) {
	m.deferred.WithLabelValues(statusLabel(ok)).Inc()
}

func (m *Metrics) observeBlock(height uint64, mempool, pending int) {
	m.blocks.Inc()
	m.height.Set(float64(height))
	m.mempoolSize.Set(float64(mempool))
	m.pendingCalls.Set(float64(pending))
}
