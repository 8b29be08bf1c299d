package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/maestro-performance/maestro-go/pkg/notes"
)

func TestRecordState(t *testing.T) {
	all := []string{"idle", "warm-up", "running"}
	RecordState("warm-up", all)
	assert.Equal(t, 0.0, testutil.ToFloat64(coordinatorState.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(coordinatorState.WithLabelValues("warm-up")))

	RecordState("running", all)
	assert.Equal(t, 0.0, testutil.ToFloat64(coordinatorState.WithLabelValues("warm-up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(coordinatorState.WithLabelValues("running")))
}

func TestRecordStats(t *testing.T) {
	ResetPeerStats()
	stats := notes.NewStatsResponse(notes.Origin{Peer: notes.PeerInfo{Role: notes.RoleSender, Name: "sender1", Host: "h1"}})
	stats.Rate = 99.5
	stats.Latency = 3
	stats.Count = 1000
	RecordStats(stats)

	assert.Equal(t, 99.5, testutil.ToFloat64(peerRate.WithLabelValues("sender1@h1", "sender")))
	assert.Equal(t, 3.0, testutil.ToFloat64(peerLatency.WithLabelValues("sender1@h1", "sender")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(peerCount.WithLabelValues("sender1@h1", "sender")))

	ResetPeerStats()
	assert.Equal(t, 0, testutil.CollectAndCount(peerRate))
}

func TestRecordPublished(t *testing.T) {
	n := notes.NewStopSenderRequest()
	counter := notesPublished.WithLabelValues("request", "stop-sender")
	before := testutil.ToFloat64(counter)
	RecordPublished(n)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
