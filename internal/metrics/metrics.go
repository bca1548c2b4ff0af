package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ForwardDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ssm_forward_duration_seconds",
		Help:    "Duration of a forward pass per layer kind",
		Buckets: prometheus.ExponentialBuckets(1e-5, 4, 12),
	}, []string{"layer"})

	KernelDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ssm_kernel_duration_seconds",
		Help:    "Histogram of numeric kernel execution times",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	}, []string{"kernel"})

	SequenceLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ssm_sequence_length_steps",
		Help:    "Distribution of sequence lengths processed",
		Buckets: []float64{4, 16, 64, 256, 1024, 4096, 16384, 65536},
	})

	NumericalInstability = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ssm_numerical_instability_total",
		Help: "Total number of NaN/Inf values detected",
	}, []string{"tensor", "type"})

	ParameterBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ssm_parameter_bytes",
		Help: "Bytes held by the parameter store",
	})

	ParameterInits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ssm_parameter_init_total",
		Help: "Parameters created, by initializer",
	}, []string{"initializer"})

	WorkspaceBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ssm_workspace_allocated_bytes",
		Help: "Bytes allocated by the numeric workspace pool",
	})

	FlightRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ssm_flight_requests_total",
		Help: "Flight RPCs served, by method and status",
	}, []string{"method", "status"})

	FlightSequences = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ssm_flight_sequences_total",
		Help: "Sequences transformed over Flight",
	})
)

func RecordForward(layer string, duration time.Duration) {
	ForwardDuration.WithLabelValues(layer).Observe(duration.Seconds())
}

func RecordKernelDuration(name string, duration time.Duration) {
	KernelDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func RecordSequenceLength(steps int) {
	SequenceLength.Observe(float64(steps))
}

func RecordNumericalInstability(name string, nanCount, infCount int) {
	if nanCount > 0 {
		NumericalInstability.WithLabelValues(name, "nan").Add(float64(nanCount))
	}
	if infCount > 0 {
		NumericalInstability.WithLabelValues(name, "inf").Add(float64(infCount))
	}
}

func RecordParameterBytes(bytes int64) {
	ParameterBytes.Set(float64(bytes))
}

func RecordParameterInit(initializer string) {
	ParameterInits.WithLabelValues(initializer).Inc()
}

func RecordWorkspaceBytes(bytes int64) {
	WorkspaceBytes.Set(float64(bytes))
}

// RecordFlightRequest counts one RPC; err == nil is reported as "ok".
func RecordFlightRequest(method string, sequences int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	FlightRequests.WithLabelValues(method, status).Inc()
	FlightSequences.Add(float64(sequences))
}
