package corekv

import (
	"time"

	gometrics "github.com/armon/go-metrics"
)

// clusterMetrics wires the core's counters through the teacher's own
// transitive go-metrics dependency (pulled in via clusterkit/raft but never
// exercised by the teacher's client-facing code) instead of a bespoke
// counter type.
type clusterMetrics struct {
	sink *gometrics.InmemSink
	m    *gometrics.Metrics
}

func newClusterMetrics() *clusterMetrics {
	sink := gometrics.NewInmemSink(10*time.Second, time.Minute)
	cfg := gometrics.DefaultConfig("corekv")
	cfg.EnableHostname = false
	m, _ := gometrics.New(cfg, sink)
	return &clusterMetrics{sink: sink, m: m}
}

func (cm *clusterMetrics) tendRefreshed(n int) {
	cm.m.IncrCounter([]string{"tend", "refreshed"}, float32(n))
}

func (cm *clusterMetrics) tendFailed(n int) {
	cm.m.IncrCounter([]string{"tend", "failed"}, float32(n))
}

func (cm *clusterMetrics) nodeAdded() {
	cm.m.IncrCounter([]string{"tend", "node_added"}, 1)
}

func (cm *clusterMetrics) nodeRemoved() {
	cm.m.IncrCounter([]string{"tend", "node_removed"}, 1)
}

func (cm *clusterMetrics) batchLatency(d time.Duration) {
	cm.m.AddSample([]string{"batch", "latency_ms"}, float32(d.Milliseconds()))
}

func (cm *clusterMetrics) batchError() {
	cm.m.IncrCounter([]string{"batch", "errors"}, 1)
}

// Snapshot returns the most recent in-memory interval's metrics, or nil if
// the sink holds no interval yet.
func (cm *clusterMetrics) Snapshot() *gometrics.IntervalMetrics {
	data := cm.sink.Data()
	if len(data) == 0 {
		return nil
	}
	return data[len(data)-1]
}
