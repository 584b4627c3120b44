package batch

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("batch")

var (
	opsSucceededTotal    = metrics.NewCounter(`xkv_batch_ops_total{result="succeeded"}`)
	opsFailedTotal       = metrics.NewCounter(`xkv_batch_ops_total{result="failed"}`)
	opsRejectedTotal     = metrics.NewCounter(`xkv_batch_ops_total{result="rejected"}`)
	completionOverflows  = metrics.NewCounter(`xkv_batch_completion_overflow_total`)
	batchDurationSeconds = metrics.NewHistogram(`xkv_batch_duration_seconds`)
	backgroundCleanups   = metrics.NewCounter(`xkv_batch_background_cleanups_total`)
)

func batchTotal(s Status) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`xkv_batch_total{status=%q}`, s.String()))
}
