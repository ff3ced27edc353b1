package keystore

// metrics.go implements the metricsSink / noopMetrics / promMetrics split:
// a Keystore built without WithMetrics pays nothing on the hot
// admission/query path, while one built with a *prometheus.Registry gets
// labeled counters and a gauge.
//
// © 2025 e2ee-keystore authors. MIT License.

import (
	"github.com/prometheus/client_golang/prometheus"
)

// admission outcome labels.
const (
	outcomeOK         = "ok"
	outcomeAlready    = "already"
	outcomeCorrection = "correction"
	outcomeNotFound   = "not_found"
	outcomeFatal      = "fatal"
)

type metricsSink interface {
	incAdmission(id, outcome string)
	incRatchetStep(id string)
	incRotation(id string)
	incListenerFire(id string)
	setHeadIndex(id string, index uint32)
}

type noopMetrics struct{}

func (noopMetrics) incAdmission(string, string)  {}
func (noopMetrics) incRatchetStep(string)        {}
func (noopMetrics) incRotation(string)           {}
func (noopMetrics) incListenerFire(string)       {}
func (noopMetrics) setHeadIndex(string, uint32)  {}

type promMetrics struct {
	admissions   *prometheus.CounterVec
	ratchetSteps *prometheus.CounterVec
	rotations    *prometheus.CounterVec
	listenerFire *prometheus.CounterVec
	headIndex    *prometheus.GaugeVec
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	idLabel := []string{"id"}

	pm := &promMetrics{
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "e2ee_keystore",
			Name:      "admissions_total",
			Help:      "Session-key admissions by outcome.",
		}, []string{"id", "outcome"}),
		ratchetSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "e2ee_keystore",
			Name:      "ratchet_steps_total",
			Help:      "Ring slots derived by the internal ratchet helper.",
		}, idLabel),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "e2ee_keystore",
			Name:      "rotations_total",
			Help:      "Explicit Rotate() calls.",
		}, idLabel),
		listenerFire: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "e2ee_keystore",
			Name:      "listener_fires_total",
			Help:      "Listener invocations across first-key admission and rotate.",
		}, idLabel),
		headIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "e2ee_keystore",
			Name:      "head_index",
			Help:      "Highest admitted generation index.",
		}, idLabel),
	}

	// Collectors are labeled by id, so keystores sharing a registry reuse them.
	register := func(c prometheus.Collector) prometheus.Collector {
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				return are.ExistingCollector
			}
			panic(err)
		}
		return c
	}
	pm.admissions = register(pm.admissions).(*prometheus.CounterVec)
	pm.ratchetSteps = register(pm.ratchetSteps).(*prometheus.CounterVec)
	pm.rotations = register(pm.rotations).(*prometheus.CounterVec)
	pm.listenerFire = register(pm.listenerFire).(*prometheus.CounterVec)
	pm.headIndex = register(pm.headIndex).(*prometheus.GaugeVec)
	return pm
}

func (m *promMetrics) incAdmission(id, outcome string) {
	m.admissions.WithLabelValues(id, outcome).Inc()
}
func (m *promMetrics) incRatchetStep(id string) { m.ratchetSteps.WithLabelValues(id).Inc() }
func (m *promMetrics) incRotation(id string)    { m.rotations.WithLabelValues(id).Inc() }
func (m *promMetrics) incListenerFire(id string) { m.listenerFire.WithLabelValues(id).Inc() }
func (m *promMetrics) setHeadIndex(id string, index uint32) {
	m.headIndex.WithLabelValues(id).Set(float64(index))
}

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
