package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	taskStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minerd",
			Subsystem: "task",
			Name:      "starts_total",
			Help:      "Number of successful worker launches.",
		}, []string{"name"},
	)
	taskStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minerd",
			Subsystem: "task",
			Name:      "stops_total",
			Help:      "Number of completed stop requests.",
		}, []string{"name"},
	)
	taskExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minerd",
			Subsystem: "task",
			Name:      "exits_total",
			Help:      "Number of worker exits observed, by exit code.",
		}, []string{"name", "code"},
	)
	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minerd",
			Subsystem: "task",
			Name:      "launch_failures_total",
			Help:      "Number of worker launches that failed.",
		}, []string{"name"},
	)
	running = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "minerd",
			Subsystem: "task",
			Name:      "running",
			Help:      "1 while a worker process is active.",
		}, []string{"name"},
	)
	logLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minerd",
			Subsystem: "log",
			Name:      "lines_total",
			Help:      "Lines appended to the log buffer by stream.",
		}, []string{"stream"},
	)
	logSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minerd",
			Subsystem: "log",
			Name:      "skipped_lines_total",
			Help:      "Worker output lines dropped because they were not valid text or too long.",
		}, []string{"stream"},
	)
	logEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "minerd",
			Subsystem: "log",
			Name:      "evicted_total",
			Help:      "Entries evicted from the bounded log buffer.",
		},
	)
	workerCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "minerd",
			Subsystem: "worker",
			Name:      "cpu_percent",
			Help:      "CPU usage of the worker process.",
		}, []string{"name"},
	)
	workerMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "minerd",
			Subsystem: "worker",
			Name:      "memory_mb",
			Help:      "Resident memory of the worker process in MB.",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{taskStarts, taskStops, taskExits, launchFailures, running, logLines, logSkipped, logEvicted, workerCPU, workerMemory}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves a specific gatherer, e.g. a test registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The helpers below no-op until Register has succeeded.

func IncStart(name string) {
	if regOK.Load() {
		taskStarts.WithLabelValues(name).Inc()
		running.WithLabelValues(name).Set(1)
	}
}

func IncStop(name string) {
	if regOK.Load() {
		taskStops.WithLabelValues(name).Inc()
		running.WithLabelValues(name).Set(0)
	}
}

func IncExit(name, code string) {
	if regOK.Load() {
		taskExits.WithLabelValues(name, code).Inc()
		running.WithLabelValues(name).Set(0)
	}
}

func IncLaunchFailure(name string) {
	if regOK.Load() {
		launchFailures.WithLabelValues(name).Inc()
	}
}

func IncLogLine(stream string) {
	if regOK.Load() {
		logLines.WithLabelValues(stream).Inc()
	}
}

func IncSkippedLine(stream string) {
	if regOK.Load() {
		logSkipped.WithLabelValues(stream).Inc()
	}
}

func AddEvicted(n int) {
	if regOK.Load() && n > 0 {
		logEvicted.Add(float64(n))
	}
}

func SetWorkerUsage(name string, cpuPercent, memoryMB float64) {
	if regOK.Load() {
		workerCPU.WithLabelValues(name).Set(cpuPercent)
		workerMemory.WithLabelValues(name).Set(memoryMB)
	}
}
