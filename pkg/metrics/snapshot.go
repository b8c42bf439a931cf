package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ChannelStats is the attempt/success pair for one channel.
type ChannelStats struct {
	Attempts  float64 `json:"attempts"`
	Successes float64 `json:"successes"`
}

// Snapshot is a point-in-time view of this process's delivery counters
// for the health/stats surface.
type Snapshot struct {
	Enqueued         float64                 `json:"enqueued"`
	Expired          float64                 `json:"expired"`
	TerminalFailures float64                 `json:"terminal_failures"`
	Channels         map[string]ChannelStats `json:"channels"`
}

// SnapshotFor reads the current counter values for the given channels.
func (m *Metrics) SnapshotFor(channels []string) Snapshot {
	snap := Snapshot{
		Enqueued:         counterValue(m.ItemsEnqueued),
		Expired:          counterValue(m.ItemsExpired),
		TerminalFailures: counterValue(m.TerminalFailures),
		Channels:         make(map[string]ChannelStats, len(channels)),
	}
	for _, ch := range channels {
		success := counterValue(m.DeliveryAttempts.WithLabelValues(ch, "success"))
		failure := counterValue(m.DeliveryAttempts.WithLabelValues(ch, "failure"))
		snap.Channels[ch] = ChannelStats{
			Attempts:  success + failure,
			Successes: success,
		}
	}
	return snap
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
