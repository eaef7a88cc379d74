// Package metrics 将数据变更的进度导出为 prometheus 指标
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bililive-go/datachange/src/pkg/massupdate"
)

const (
	outcomeCommitted  = "committed"
	outcomeRolledBack = "rolled_back"
)

// Collector 实现 massupdate.Observer，同时作为 prometheus.Collector 注册
type Collector struct {
	rows          *prometheus.GaugeVec
	batches       *prometheus.CounterVec
	batchRows     *prometheus.CounterVec
	flushDuration *prometheus.HistogramVec
	finished      *prometheus.CounterVec

	mu   sync.RWMutex
	last map[string]Snapshot
}

// Snapshot 某个 MassUpdate 最近一次上报的进度
type Snapshot struct {
	Name     string              `json:"name"`
	State    string              `json:"state"`
	Progress massupdate.Progress `json:"progress"`
	Updated  time.Time           `json:"updated"`
}

var _ massupdate.Observer = (*Collector)(nil)
var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(namespace string) *Collector {
	return &Collector{
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mass_update",
			Name:      "rows",
			Help:      "Rows processed by the running or last mass update, by counter kind.",
		}, []string{"mass_update", "kind"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mass_update",
			Name:      "batches_total",
			Help:      "Update batches executed, by outcome.",
		}, []string{"mass_update", "outcome"}),
		batchRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mass_update",
			Name:      "batch_rows_total",
			Help:      "Rows in executed update batches, by outcome.",
		}, []string{"mass_update", "outcome"}),
		flushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mass_update",
			Name:      "batch_duration_seconds",
			Help:      "Time spent executing and committing an update batch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"mass_update"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mass_update",
			Name:      "finished_total",
			Help:      "Mass updates that reached a terminal state.",
		}, []string{"mass_update", "state"}),
		last: make(map[string]Snapshot),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.rows.Describe(ch)
	c.batches.Describe(ch)
	c.batchRows.Describe(ch)
	c.flushDuration.Describe(ch)
	c.finished.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.rows.Collect(ch)
	c.batches.Collect(ch)
	c.batchRows.Collect(ch)
	c.flushDuration.Collect(ch)
	c.finished.Collect(ch)
}

func (c *Collector) Progressed(name string, p massupdate.Progress) {
	c.setRows(name, p)
	c.remember(name, massupdate.StateRunning, p)
}

func (c *Collector) BatchFlushed(name string, size int, elapsed time.Duration, err error) {
	outcome := outcomeCommitted
	if err != nil {
		outcome = outcomeRolledBack
	}
	c.batches.WithLabelValues(name, outcome).Inc()
	c.batchRows.WithLabelValues(name, outcome).Add(float64(size))
	c.flushDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (c *Collector) Finished(res *massupdate.Result) {
	c.setRows(res.Name, res.Progress)
	c.finished.WithLabelValues(res.Name, res.State.String()).Inc()
	c.remember(res.Name, res.State, res.Progress)
}

func (c *Collector) setRows(name string, p massupdate.Progress) {
	c.rows.WithLabelValues(name, "read").Set(float64(p.Read))
	c.rows.WithLabelValues(name, "updated").Set(float64(p.Updated))
	c.rows.WithLabelValues(name, "skipped").Set(float64(p.Skipped))
	c.rows.WithLabelValues(name, "written").Set(float64(p.Written))
}

func (c *Collector) remember(name string, state massupdate.State, p massupdate.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[name] = Snapshot{Name: name, State: state.String(), Progress: p, Updated: time.Now()}
}

// Snapshots 按名称返回所有 MassUpdate 的最近进度
func (c *Collector) Snapshots() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Snapshot, 0, len(c.last))
	for _, s := range c.last {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
