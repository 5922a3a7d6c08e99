package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-cuke/types"
)

const (
	MetricsNamespace = "cuke"
)

var (
	Debug                bool = true
	validOutcomes             = []types.BatchOutcome{types.OutcomeAllSucceeded, types.OutcomeSomeFailed, types.OutcomeAborted}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	unitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "units_total",
		Help:      "Count of resolved execution units",
	}, []string{
		"mode",
		"engine",
		"result",
	})

	unitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "unit_duration_seconds",
		Help:      "Wall time of execution units",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{
		"mode",
	})

	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "batches_total",
		Help:      "Count of awaited batches by outcome",
	}, []string{
		"mode",
		"outcome",
	})

	batchUnits = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "batch_units",
		Help:      "Units in the last batch of a mode",
	}, []string{
		"mode",
		"state",
	})

	batchDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "batch_duration_seconds",
		Help:      "Wall time of the last batch of a mode",
	}, []string{
		"mode",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of scheduler runs",
	}, []string{
		"run_id",
		"status",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of scheduler runs",
	}, []string{
		"run_id",
	})

	poolWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "pool_workers",
		Help:      "Number of worker goroutines in the pool",
	})

	poolQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "pool_queued_units",
		Help:      "Units accepted but not yet started",
	})

	poolInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "pool_in_flight_units",
		Help:      "Units currently executing",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordUnit records one resolved unit.
func RecordUnit(mode types.ExecutionMode, code types.ResultCode, duration time.Duration) {
	result := "pass"
	if !code.Succeeded() {
		result = "fail"
	}
	if Debug {
		log.Debug("metric inc",
			"m", "units_total",
			"mode", mode,
			"result", result)
	}
	unitsTotal.WithLabelValues(mode.String(), mode.Engine().String(), result).Inc()
	unitDuration.WithLabelValues(mode.String()).Observe(duration.Seconds())
}

// RecordBatch records the outcome of an awaited batch.
func RecordBatch(mode types.ExecutionMode, outcome types.BatchOutcome, total int, failed int, duration time.Duration) {
	if !slices.Contains(validOutcomes, outcome) {
		log.Error("RecordBatch - invalid outcome", "outcome", outcome)
		return
	}
	batchesTotal.WithLabelValues(mode.String(), string(outcome)).Inc()
	batchUnits.WithLabelValues(mode.String(), "total").Set(float64(total))
	batchUnits.WithLabelValues(mode.String(), "failed").Set(float64(failed))
	batchDuration.WithLabelValues(mode.String()).Set(duration.Seconds())
}

// RecordRun records the final verdict of a run.
func RecordRun(runID string, status types.RunStatus, duration time.Duration) {
	runResults.WithLabelValues(runID, string(status)).Set(1)
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func SetPoolWorkers(n int) {
	poolWorkers.Set(float64(n))
}

func SetPoolQueued(n int) {
	poolQueued.Set(float64(n))
}

func SetPoolInFlight(n int) {
	poolInFlight.Set(float64(n))
}
