package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/maestro-performance/maestro-go/pkg/notes"
)

const MetricPrefix = "maestro_"

var notesPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "notes_published_total",
		Help: "Number of notes published to the broker",
	},
	[]string{"type", "command"},
)

var notesReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "notes_received_total",
		Help: "Number of notes received from the broker",
	},
	[]string{"type", "command"},
)

var malformedNotes = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricPrefix + "malformed_notes_total",
		Help: "Number of payloads that could not be decoded and were dropped",
	},
)

var phaseOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "phase_outcomes_total",
		Help: "Number of test phases by outcome",
	},
	[]string{"phase", "outcome"},
)

var coordinatorState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricPrefix + "coordinator_state",
		Help: "1 for the state the coordinator is currently in, 0 for the others",
	},
	[]string{"state"},
)

var peerRate = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricPrefix + "peer_rate",
		Help: "Last throughput, in messages per second, reported by a peer",
	},
	[]string{"peer", "role"},
)

var peerLatency = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricPrefix + "peer_latency_milliseconds",
		Help: "Last latency reported by a peer",
	},
	[]string{"peer", "role"},
)

var peerCount = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricPrefix + "peer_message_count",
		Help: "Messages exchanged so far by a peer, as reported in its stats",
	},
	[]string{"peer", "role"},
)

func RecordPublished(n notes.Note) {
	h := n.NoteHeader()
	notesPublished.WithLabelValues(h.Type.String(), h.Command.String()).Inc()
}

func RecordReceived(n notes.Note) {
	h := n.NoteHeader()
	notesReceived.WithLabelValues(h.Type.String(), h.Command.String()).Inc()
}

func RecordMalformed() {
	malformedNotes.Inc()
}

func RecordPhaseOutcome(phase, outcome string) {
	phaseOutcomes.WithLabelValues(phase, outcome).Inc()
}

// RecordState flags state as the current coordinator state among all.
func RecordState(state string, all []string) {
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1.0
		}
		coordinatorState.WithLabelValues(s).Set(value)
	}
}

// RecordStats exports the figures carried by a stats response.
func RecordStats(stats *notes.StatsResponse) {
	peer := stats.Origin.Peer
	peerRate.WithLabelValues(peer.Key(), peer.Role.String()).Set(stats.Rate)
	peerLatency.WithLabelValues(peer.Key(), peer.Role.String()).Set(stats.Latency)
	peerCount.WithLabelValues(peer.Key(), peer.Role.String()).Set(float64(stats.Count))
}

// ResetPeerStats drops the per peer series, so that peers of a previous test do not linger.
func ResetPeerStats() {
	peerRate.Reset()
	peerLatency.Reset()
	peerCount.Reset()
}
