// Package metrics is a lightweight counters and latency sum/count surface, in the
// teacher's ChainMetrics style, exported as Prometheus text format. Export
// itself (the HTTP endpoint) is out of scope (spec §1); this package only
// owns the in-process counters and the text-format renderer.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Metrics is the process-lifetime counter set. Safe for concurrent use.
type Metrics struct {
	mu        sync.Mutex
	counters  map[string]*int64
	durations map[string][]float64
}

func New() *Metrics {
	return &Metrics{
		counters:  make(map[string]*int64),
		durations: make(map[string][]float64),
	}
}

// IncRequest increments the request counter for method, tagged by outcome
// ("ok" or an error code).
func (m *Metrics) IncRequest(method, outcome string) {
	m.bump("korasign_requests_total{method=\"" + method + "\",outcome=\"" + outcome + "\"}")
}

// IncPolicyRejection increments a counter for a specific policy rule id.
func (m *Metrics) IncPolicyRejection(ruleID string) {
	m.bump("korasign_policy_rejections_total{rule=\"" + ruleID + "\"}")
}

// ObserveLatency records a stage's duration in seconds.
func (m *Metrics) ObserveLatency(stage string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[stage] = append(m.durations[stage], seconds)
}

func (m *Metrics) bump(key string) {
	m.mu.Lock()
	counter, ok := m.counters[key]
	if !ok {
		counter = new(int64)
		m.counters[key] = counter
	}
	m.mu.Unlock()
	atomic.AddInt64(counter, 1)
}

// Export renders the current counters as Prometheus exposition text.
func (m *Metrics) Export() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	for key, val := range m.counters {
		fmt.Fprintf(&b, "%s %d\n", key, atomic.LoadInt64(val))
	}
	for stage, samples := range m.durations {
		var sum float64
		for _, s := range samples {
			sum += s
		}
		fmt.Fprintf(&b, "korasign_stage_duration_seconds_sum{stage=\"%s\"} %f\n", stage, sum)
		fmt.Fprintf(&b, "korasign_stage_duration_seconds_count{stage=\"%s\"} %d\n", stage, len(samples))
	}
	return b.String()
}
