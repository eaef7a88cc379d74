package datachange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/datachange/src/pkg/massupdate"
)

// ErrNoCheckpoints 没有配置检查点存储时读写水位线
var ErrNoCheckpoints = errors.New("checkpoint store not configured")

// WatermarkStore 持久化每个步骤的处理位置
type WatermarkStore interface {
	GetWatermark(ctx context.Context, step string) (string, bool, error)
	SetWatermark(ctx context.Context, step, value string) error
}

// Context 一次步骤执行的上下文
type Context struct {
	name   string
	now    time.Time
	opts   Options
	logger *logrus.Entry

	progress    massupdate.Progress
	massUpdates int
	incomplete  bool
}

func newContext(name string, now time.Time, opts Options) *Context {
	return &Context{
		name:   name,
		now:    now,
		opts:   opts,
		logger: opts.Logger.WithField("step", name),
	}
}

// Name 步骤名称
func (c *Context) Name() string { return c.name }

// DB 步骤使用的数据库
func (c *Context) DB() massupdate.Database { return c.opts.DB }

// Now 步骤开始时取得的时间，同一步骤内所有行使用同一个值
func (c *Context) Now() time.Time { return c.now }

// Logger 带步骤名的日志
func (c *Context) Logger() *logrus.Entry { return c.logger }

// Progress 步骤内所有 MassUpdate 的累计进度
func (c *Context) Progress() massupdate.Progress { return c.progress }

// PrepareMassUpdate 创建使用步骤默认配置的 MassUpdate
// spec 中未设置的名称和批大小使用步骤名和 Options.BatchSize。
// 之前的 MassUpdate 被 Stop 截断后返回 ErrIncomplete，后续遍历依赖前一遍的结果。
func (c *Context) PrepareMassUpdate(spec massupdate.Spec) (*MassUpdate, error) {
	if c.incomplete {
		return nil, fmt.Errorf("%w: %s: previous mass update was aborted", ErrIncomplete, c.name)
	}
	if spec.Name == "" {
		spec.Name = c.name
	}
	if spec.BatchSize == 0 {
		spec.BatchSize = c.opts.BatchSize
	}
	m, err := massupdate.New(c.opts.DB, spec,
		massupdate.WithLogger(c.logger),
		massupdate.WithObserver(c.opts.Observer),
		massupdate.WithProgressInterval(c.opts.ProgressInterval),
	)
	if err != nil {
		return nil, err
	}
	return &MassUpdate{inner: m, step: c}, nil
}

// Watermark 读取上次记录的处理位置
func (c *Context) Watermark(ctx context.Context) (string, bool, error) {
	if c.opts.Checkpoints == nil {
		return "", false, ErrNoCheckpoints
	}
	return c.opts.Checkpoints.GetWatermark(ctx, c.name)
}

// SetWatermark 记录处理位置，下次执行时可以从这里继续
func (c *Context) SetWatermark(ctx context.Context, value string) error {
	if c.opts.Checkpoints == nil {
		return ErrNoCheckpoints
	}
	return c.opts.Checkpoints.SetWatermark(ctx, c.name, value)
}

func (c *Context) record(res *massupdate.Result) {
	c.massUpdates++
	c.progress = c.progress.Add(res.Progress)
	if res.State == massupdate.StateAborted {
		c.incomplete = true
	}
}

// MassUpdate 属于某个步骤的 MassUpdate，执行结果计入步骤进度
type MassUpdate struct {
	inner *massupdate.MassUpdate
	step  *Context
}

// Spec 补全默认值之后的配置
func (m *MassUpdate) Spec() massupdate.Spec { return m.inner.Spec() }

// Execute 执行 MassUpdate
// 配置了 Options.Interrupt 时，中断后下一行返回 Stop，步骤以未完成结束。
func (m *MassUpdate) Execute(ctx context.Context, h massupdate.Handler) (*massupdate.Result, error) {
	if h != nil && m.step.opts.Interrupt != nil {
		h = massupdate.StopOnDone(m.step.opts.Interrupt, h)
	}
	res, err := m.inner.Execute(ctx, h)
	if res != nil {
		m.step.record(res)
	}
	return res, err
}
