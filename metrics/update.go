package metrics

import "sync/atomic"

// RunCounters - счётчики одного запуска синхронизации, безопасны для конкурентного чтения.
type RunCounters struct {
	Processed atomic.Int32
	Succeeded atomic.Int32
	Failed    atomic.Int32
	Skipped   atomic.Int32
}

const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

// Record учитывает обработанный элемент и дублирует его в Prometheus.
func (c *RunCounters) Record(result string) {
	c.Processed.Add(1)
	switch result {
	case ResultSucceeded:
		c.Succeeded.Add(1)
	case ResultFailed:
		c.Failed.Add(1)
	case ResultSkipped:
		c.Skipped.Add(1)
	}
	RecordSyncItem(result)
}
