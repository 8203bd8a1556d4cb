package buildmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the build summary gauges of one registry.
type Metrics struct {
	AggregateBuildSeconds prometheus.Gauge
	AggregateWaitSeconds  prometheus.Gauge
	WastedWaitMinutes     prometheus.Gauge
	ElapsedTotalMinutes   prometheus.Gauge
	Tasks                 prometheus.Gauge
	DiscardedTasks        prometheus.Gauge
}

// NewMetrics registers the build summary gauges with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AggregateBuildSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleetbuild_build_aggregate_build_seconds",
			Help: "Sum of active build time over all build tasks of the run",
		}),
		AggregateWaitSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleetbuild_build_aggregate_wait_seconds",
			Help: "Sum of queue wait time over all build tasks of the run",
		}),
		WastedWaitMinutes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleetbuild_build_wasted_wait_minutes",
			Help: "Minutes during which at least one build task was waiting for capacity",
		}),
		ElapsedTotalMinutes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleetbuild_build_elapsed_total_minutes",
			Help: "Minutes from the first task creation to the last task completion",
		}),
		Tasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleetbuild_build_tasks",
			Help: "Number of build tasks aggregated",
		}),
		DiscardedTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleetbuild_build_discarded_tasks",
			Help: "Number of build tasks discarded for missing state or timestamps",
		}),
	}
}

// Observe sets every gauge from s.
func (m *Metrics) Observe(s Summary) {
	m.AggregateBuildSeconds.Set(float64(s.AggregateBuildSeconds))
	m.AggregateWaitSeconds.Set(float64(s.AggregateWaitSeconds))
	m.WastedWaitMinutes.Set(float64(s.WastedWaitMinutes))
	m.ElapsedTotalMinutes.Set(s.ElapsedTotalMinutes)
	m.Tasks.Set(float64(s.TaskCount))
	m.DiscardedTasks.Set(float64(s.Discarded))
}

// WriteTextfile writes s in the node-exporter textfile format to path.
func WriteTextfile(path string, s Summary) error {
	reg := prometheus.NewRegistry()
	NewMetrics(reg).Observe(s)
	return prometheus.WriteToTextfile(path, reg)
}
