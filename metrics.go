package circular_buffer_go

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// bufferMetrics mirrors Statistics as Prometheus collectors.
type bufferMetrics struct {
	registerer prometheus.Registerer
	name       string

	pushes      prometheus.Counter
	pops        prometheus.Counter
	peeks       prometheus.Counter
	pushedBytes prometheus.Counter
	poppedBytes prometheus.Counter
	overflows   prometheus.Counter
	underflows  prometheus.Counter
	empties     prometheus.Counter
	lockErrors  prometheus.Counter

	occupancy prometheus.Gauge
	capacity  prometheus.Gauge
}

func newCounter(name, bufferName, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "ringbuffer",
		Name:        name,
		ConstLabels: prometheus.Labels{"buffer": bufferName},
		Help:        help,
	})
}

func newGauge(name, bufferName, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "ringbuffer",
		Name:        name,
		ConstLabels: prometheus.Labels{"buffer": bufferName},
		Help:        help,
	})
}

// newBufferMetrics creates the collectors and registers them. A name that is
// already registered on registerer belongs to another buffer and is an error;
// nothing stays registered when registration fails.
func newBufferMetrics(registerer prometheus.Registerer, bufferName string) (*bufferMetrics, error) {
	m := &bufferMetrics{
		registerer:  registerer,
		name:        bufferName,
		pushes:      newCounter("pushes_total", bufferName, "Total number of successful push operations"),
		pops:        newCounter("pops_total", bufferName, "Total number of successful pop operations"),
		peeks:       newCounter("peeks_total", bufferName, "Total number of successful peek operations"),
		pushedBytes: newCounter("pushed_bytes_total", bufferName, "Total bytes pushed into the buffer"),
		poppedBytes: newCounter("popped_bytes_total", bufferName, "Total bytes popped from the buffer"),
		overflows:   newCounter("overflows_total", bufferName, "Pushes rejected for lack of free space"),
		underflows:  newCounter("underflows_total", bufferName, "Pops rejected for lack of buffered data"),
		empties:     newCounter("empty_total", bufferName, "Pops rejected because the buffer was empty"),
		lockErrors:  newCounter("lock_errors_total", bufferName, "Failed lock callback invocations"),
		occupancy:   newGauge("occupancy_bytes", bufferName, "Bytes currently held by the buffer"),
		capacity:    newGauge("capacity_bytes", bufferName, "Size of the backing storage in bytes"),
	}

	collectors := m.collectors()
	for i, c := range collectors {
		if err := registerer.Register(c); err != nil {
			for _, registered := range collectors[:i] {
				registerer.Unregister(registered)
			}
			return nil, fmt.Errorf("register metrics for buffer %q: %w", bufferName, err)
		}
	}

	return m, nil
}

func (m *bufferMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.pushes, m.pops, m.peeks, m.pushedBytes, m.poppedBytes,
		m.overflows, m.underflows, m.empties, m.lockErrors,
		m.occupancy, m.capacity,
	}
}

// registeredOn reports whether m was registered on registerer under name.
func (m *bufferMetrics) registeredOn(registerer prometheus.Registerer, name string) bool {
	return m != nil && m.registerer == registerer && m.name == name
}

func (m *bufferMetrics) unregister() {
	for _, c := range m.collectors() {
		m.registerer.Unregister(c)
	}
}

func (m *bufferMetrics) recordPush(n, count int) {
	m.pushes.Inc()
	m.pushedBytes.Add(float64(n))
	m.occupancy.Set(float64(count))
}

func (m *bufferMetrics) recordPop(n, count int) {
	m.pops.Inc()
	m.poppedBytes.Add(float64(n))
	m.occupancy.Set(float64(count))
}

func (m *bufferMetrics) reset(capacity int) {
	m.occupancy.Set(0)
	m.capacity.Set(float64(capacity))
}
