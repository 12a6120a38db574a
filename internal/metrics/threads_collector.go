// Package metrics exposes the thread registry and its lifecycle counters to
// Prometheus.
package metrics

import (
	"strconv"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"

	"rtthreads/internal/logger"
	"rtthreads/internal/osthread"
	"rtthreads/internal/threads"
)

var priorityClasses = []osthread.PriorityClass{
	osthread.UnknownPriorityClass,
	osthread.IdlePriorityClass,
	osthread.NormalPriorityClass,
	osthread.RealTimePriorityClass,
}

// ThreadsCollector implements prometheus.Collector for a threads.Manager.
// Values are read from the registry on each scrape; nothing is cached between
// scrapes, so threads that have gone disappear from the output.
type ThreadsCollector struct {
	manager   *threads.Manager
	perThread bool
	log       log.Logger

	// Metric Descriptors
	registeredDesc  *prometheus.Desc
	capacityDesc    *prometheus.Desc
	byClassDesc     *prometheus.Desc
	threadLevelDesc *prometheus.Desc
	startedDesc     *prometheus.Desc
	terminatedDesc  *prometheus.Desc
	killedDesc      *prometheus.Desc
	failedDesc      *prometheus.Desc
}

// NewThreadsCollector creates a collector for m. perThread adds one series per
// registered thread, which is only reasonable for small registries.
func NewThreadsCollector(m *threads.Manager, perThread bool) *ThreadsCollector {
	return &ThreadsCollector{
		manager:   m,
		perThread: perThread,
		log:       logger.NewLoggerWithContext("threads_collector"),

		registeredDesc: prometheus.NewDesc(
			"rtthreads_registered_threads",
			"Number of threads currently registered",
			nil, nil),
		capacityDesc: prometheus.NewDesc(
			"rtthreads_registry_capacity",
			"Number of slots allocated by the thread registry",
			nil, nil),
		byClassDesc: prometheus.NewDesc(
			"rtthreads_threads_by_priority_class",
			"Registered threads by priority class",
			[]string{"class"}, nil),
		threadLevelDesc: prometheus.NewDesc(
			"rtthreads_thread_priority_level",
			"Priority level of each registered thread",
			[]string{"tid", "name", "class"}, nil),
		startedDesc: prometheus.NewDesc(
			"rtthreads_threads_started_total",
			"Total number of threads whose entry point was released",
			nil, nil),
		terminatedDesc: prometheus.NewDesc(
			"rtthreads_threads_terminated_total",
			"Total number of threads whose entry point returned",
			nil, nil),
		killedDesc: prometheus.NewDesc(
			"rtthreads_threads_killed_total",
			"Total number of threads removed by Kill",
			nil, nil),
		failedDesc: prometheus.NewDesc(
			"rtthreads_thread_start_failures_total",
			"Total number of failed thread starts",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *ThreadsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.registeredDesc
	ch <- c.capacityDesc
	ch <- c.byClassDesc
	if c.perThread {
		ch <- c.threadLevelDesc
	}
	ch <- c.startedDesc
	ch <- c.terminatedDesc
	ch <- c.killedDesc
	ch <- c.failedDesc
}

// Collect implements prometheus.Collector.
func (c *ThreadsCollector) Collect(ch chan<- prometheus.Metric) {
	db := c.manager.Database()
	infos, capacity, err := db.Snapshot()
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to snapshot registry")
		return
	}

	ch <- prometheus.MustNewConstMetric(c.registeredDesc, prometheus.GaugeValue, float64(len(infos)))
	ch <- prometheus.MustNewConstMetric(c.capacityDesc, prometheus.GaugeValue, float64(capacity))

	perClass := make(map[osthread.PriorityClass]int, len(priorityClasses))
	for _, info := range infos {
		perClass[info.PriorityClass]++
		if c.perThread {
			ch <- prometheus.MustNewConstMetric(c.threadLevelDesc, prometheus.GaugeValue,
				float64(info.PriorityLevel),
				strconv.FormatUint(uint64(info.ID), 10),
				info.Name,
				info.PriorityClass.String(),
			)
		}
	}
	for _, class := range priorityClasses {
		ch <- prometheus.MustNewConstMetric(c.byClassDesc, prometheus.GaugeValue,
			float64(perClass[class]), class.String())
	}

	diag := c.manager.Diagnostics()
	ch <- prometheus.MustNewConstMetric(c.startedDesc, prometheus.CounterValue, float64(diag.Started()))
	ch <- prometheus.MustNewConstMetric(c.terminatedDesc, prometheus.CounterValue, float64(diag.Terminated()))
	ch <- prometheus.MustNewConstMetric(c.killedDesc, prometheus.CounterValue, float64(diag.Killed()))
	ch <- prometheus.MustNewConstMetric(c.failedDesc, prometheus.CounterValue, float64(diag.Failed()))
}
