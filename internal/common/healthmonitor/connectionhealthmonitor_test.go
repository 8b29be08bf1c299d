package healthmonitor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/maestro-performance/maestro-go/internal/common/logging"
)

func TestConnectionHealthMonitor(t *testing.T) {
	var up atomic.Value
	up.Store(false)
	m := NewConnectionHealthMonitor("test", time.Second, func() bool { return up.Load().(bool) })
	log := logging.NullLogger.WithField("test", t.Name())

	ok, reason, err := m.IsHealthy()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, NotStartedReason, reason)

	m.Check(log)
	ok, reason, _ = m.IsHealthy()
	assert.False(t, ok)
	assert.Equal(t, DisconnectedReason, reason)

	up.Store(true)
	m.Check(log)
	ok, reason, _ = m.IsHealthy()
	assert.True(t, ok)
	assert.Empty(t, reason)

	assert.Equal(t, 2, testutil.CollectAndCount(m))
}
