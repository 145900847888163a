package scheduler

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Number of requests waiting in the priority queue",
		},
	)

	workerUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "scheduler",
			Name:      "worker_up",
			Help:      "1 when the queue worker goroutine is running",
		},
	)

	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "scheduler",
			Name:      "model_loads_total",
			Help:      "Total model load attempts",
		},
		[]string{"result"},
	)

	unloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "scheduler",
			Name:      "model_unloads_total",
			Help:      "Total model unloads",
		},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "scheduler",
			Name:      "generations_total",
			Help:      "Total generations processed by the worker",
		},
		[]string{"mode", "result"},
	)
)

func init() {
	prometheus.MustRegister(queueDepth, workerUp, loadsTotal, unloadsTotal, generationsTotal)
}
