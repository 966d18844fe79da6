package segment

import (
	"time"

	"github.com/armon/go-metrics"
)

// Metric label prefixes emitted from the segment hot paths. Consumers
// enable collection by calling metrics.NewGlobal with a sink (an inmem
// sink, statsd, etc.) before opening any segment; without one, go-metrics
// silently discards these calls.
var (
	metricAppend           = []string{"segment", "append"}
	metricAppendFull       = []string{"segment", "append", "full"}
	metricSync             = []string{"segment", "sync"}
	metricRead             = []string{"segment", "read"}
	metricChecksumMismatch = []string{"segment", "read", "checksum_mismatch"}
	metricRecoveredRecords = []string{"segment", "recovered_records"}
)

func measureAppend(start time.Time) {
	metrics.MeasureSince(metricAppend, start)
}

func measureRead(start time.Time) {
	metrics.MeasureSince(metricRead, start)
}
