package healthmonitor

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	DisconnectedReason = "disconnected"
	// NotStartedReason is reported until the first probe ran.
	NotStartedReason = "notStarted"
)

// HealthMonitor tracks the health of one broker connection and exports it as prometheus metrics.
type HealthMonitor interface {
	prometheus.Collector
	// IsHealthy returns the last probe result and, when unhealthy, why.
	IsHealthy() (ok bool, reason string, err error)
	// Run probes until ctx is done.
	Run(context.Context, *logrus.Entry) error
}

var _ HealthMonitor = &ConnectionHealthMonitor{}
