package node

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pactum-chain/pactum/builder"
	"github.com/pactum-chain/pactum/types"
)

// metrics is the supervisor's optional Prometheus metrics reporter worker.
// It observes the builder's block-commit notifications through
// core.Watcher's Observer/Observable pairing rather than polling.
type metrics struct {
	blocksCommitted prometheus.Counter
	solutionsSolved prometheus.Counter
	lastBlockNumber prometheus.Gauge
	registry        *prometheus.Registry
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()

	m := &metrics{
		blocksCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pactum_blocks_committed_total",
			Help: "Total number of blocks committed by the builder.",
		}),
		solutionsSolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pactum_solutions_solved_total",
			Help: "Total number of solutions folded into a committed block.",
		}),
		lastBlockNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pactum_last_block_number",
			Help: "Number of the most recently committed block.",
		}),
		registry: registry,
	}

	registry.MustRegister(m.blocksCommitted, m.solutionsSolved, m.lastBlockNumber)

	return m
}

// watch registers metrics as an Observer of b's Blocks watcher.
func (m *metrics) watch(b *builder.Builder) {
	b.Blocks.Add(m)
}

// NotifyCallback implements core.Observer.
func (m *metrics) NotifyCallback(event interface{}) {
	block, ok := event.(types.Block)
	if !ok {
		return
	}

	m.blocksCommitted.Inc()
	m.solutionsSolved.Add(float64(len(block.Solutions)))
	m.lastBlockNumber.Set(float64(block.Number))
}

func (m *metrics) server(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	return &http.Server{Addr: addr, Handler: mux}
}
