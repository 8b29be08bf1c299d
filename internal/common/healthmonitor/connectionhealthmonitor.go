package healthmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// ConnectionHealthMonitor periodically probes a connection and remembers the result.
type ConnectionHealthMonitor struct {
	name     string
	probe    func() bool
	interval time.Duration

	mu          sync.Mutex
	started     bool
	isHealthy   bool
	transitions int

	healthyDesc     *prometheus.Desc
	transitionsDesc *prometheus.Desc
}

func NewConnectionHealthMonitor(name string, interval time.Duration, probe func() bool) *ConnectionHealthMonitor {
	return &ConnectionHealthMonitor{
		name:     name,
		probe:    probe,
		interval: interval,
		healthyDesc: prometheus.NewDesc(
			"maestro_connection_healthy",
			"1 if the broker connection is up, 0 otherwise.",
			nil,
			prometheus.Labels{"connection": name},
		),
		transitionsDesc: prometheus.NewDesc(
			"maestro_connection_health_transitions",
			"Number of times the broker connection changed health status.",
			nil,
			prometheus.Labels{"connection": name},
		),
	}
}

func (m *ConnectionHealthMonitor) IsHealthy() (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return false, NotStartedReason, nil
	}
	if m.isHealthy {
		return true, "", nil
	}
	return false, DisconnectedReason, nil
}

// Check probes the connection once and records the result.
func (m *ConnectionHealthMonitor) Check(log *logrus.Entry) bool {
	healthy := m.probe()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started && healthy != m.isHealthy {
		m.transitions++
		if healthy {
			log.Infof("Connection %s is healthy again", m.name)
		} else {
			log.Warnf("Connection %s became unhealthy", m.name)
		}
	}
	m.started = true
	m.isHealthy = healthy
	return healthy
}

func (m *ConnectionHealthMonitor) Run(ctx context.Context, log *logrus.Entry) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.Check(log)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *ConnectionHealthMonitor) Describe(c chan<- *prometheus.Desc) {
	c <- m.healthyDesc
	c <- m.transitionsDesc
}

func (m *ConnectionHealthMonitor) Collect(c chan<- prometheus.Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()
	healthy := 0.0
	if m.isHealthy {
		healthy = 1.0
	}
	c <- prometheus.MustNewConstMetric(m.healthyDesc, prometheus.GaugeValue, healthy)
	c <- prometheus.MustNewConstMetric(m.transitionsDesc, prometheus.CounterValue, float64(m.transitions))
}
