package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imaged",
			Subsystem: "generate",
			Name:      "requests_total",
			Help:      "Generation requests by outcome",
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imaged",
			Subsystem: "generate",
			Name:      "duration_seconds",
			Help:      "Wall time of successful generations (post-admission)",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	gateInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "imaged",
			Subsystem: "gate",
			Name:      "inflight",
			Help:      "Generations currently executing",
		},
	)

	gateOccupancy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "imaged",
			Subsystem: "gate",
			Name:      "occupancy",
			Help:      "Requests inside the gate (waiting plus executing)",
		},
	)

	admissionWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imaged",
			Subsystem: "gate",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for admission",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, generationDuration, gateInFlight, gateOccupancy, admissionWait)
}
