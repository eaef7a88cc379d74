package massupdate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	bilisentry "github.com/bililive-go/datachange/src/pkg/sentry"
)

// DefaultProgressInterval 默认的进度日志间隔
const DefaultProgressInterval = time.Minute

// Progress 进度计数快照
type Progress struct {
	// Read 已读取的行数
	Read int64 `json:"read"`
	// Updated 交给写入批次的行数
	Updated int64 `json:"updated"`
	// Skipped Handler 跳过的行数
	Skipped int64 `json:"skipped"`
	// Written 已提交的行数
	Written int64 `json:"written"`
	// Batches 已执行的批次数
	Batches int64 `json:"batches"`
}

// Add 累加另一份进度，用于汇总一个步骤内的多个 MassUpdate
func (p Progress) Add(o Progress) Progress {
	return Progress{
		Read:    p.Read + o.Read,
		Updated: p.Updated + o.Updated,
		Skipped: p.Skipped + o.Skipped,
		Written: p.Written + o.Written,
		Batches: p.Batches + o.Batches,
	}
}

// counters 由执行 MassUpdate 的 goroutine 独占写入，进度日志 goroutine 只读
type counters struct {
	read    atomic.Int64
	updated atomic.Int64
	skipped atomic.Int64
	written atomic.Int64
	batches atomic.Int64
}

func (c *counters) snapshot() Progress {
	return Progress{
		Read:    c.read.Load(),
		Updated: c.updated.Load(),
		Skipped: c.skipped.Load(),
		Written: c.written.Load(),
		Batches: c.batches.Load(),
	}
}

// progressLogger 定期输出处理进度
type progressLogger struct {
	name       string
	pluralName string
	interval   time.Duration
	counters   *counters
	logger     *logrus.Entry
	observer   Observer
	cancel     context.CancelFunc
	done       chan struct{}
}

func (m *MassUpdate) startProgressLogger(ctx context.Context) *progressLogger {
	p := &progressLogger{
		name:       m.spec.Name,
		pluralName: m.spec.pluralName(),
		interval:   m.progressInterval,
		counters:   &m.counters,
		logger:     m.logger,
		observer:   m.observer,
		done:       make(chan struct{}),
	}
	if p.interval <= 0 {
		close(p.done)
		p.cancel = func() {}
		return p
	}

	ctx, p.cancel = context.WithCancel(ctx)
	bilisentry.GoWithContext(ctx, func(ctx context.Context) {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.log(start)
			}
		}
	})
	return p
}

func (p *progressLogger) log(start time.Time) {
	snap := p.counters.snapshot()
	p.observer.Progressed(p.name, snap)

	rate := int64(0)
	if secs := time.Since(start).Seconds(); secs > 0 {
		rate = int64(float64(snap.Read) / secs)
	}
	p.logger.WithFields(logrus.Fields{
		"read":    snap.Read,
		"updated": snap.Updated,
		"skipped": snap.Skipped,
		"batches": snap.Batches,
		"per_sec": rate,
	}).Infof("%d %s processed", snap.Read, p.pluralName)
}

func (p *progressLogger) stop() {
	p.cancel()
	<-p.done
}
