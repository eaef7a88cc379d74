package massupdate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// State MassUpdate 的执行状态
type State int

const (
	StateIdle State = iota
	StateRunning
	// StateCompleted 游标读完，所有批次已提交
	StateCompleted
	// StateAborted Handler 返回 Stop，执行被截断
	StateAborted
	// StateFailed 读取、绑定、处理或写入出错
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal 是否为终止状态
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// Spec 一次 MassUpdate 的不可变配置
type Spec struct {
	// Name 用于日志和指标
	Name string
	// SelectSQL 读取源数据的查询，列顺序即 Row 的序号
	SelectSQL string
	// SelectArgs 查询的位置参数
	SelectArgs []any
	// UpdateSQL 每行执行一次的写语句
	UpdateSQL string
	// RowPluralName 进度日志中使用的复数名词，默认 "rows"
	RowPluralName string
	// BatchSize 每次提交的行数，0 表示使用 DefaultBatchSize
	BatchSize int
}

// Validate 校验配置
func (s Spec) Validate() error {
	if strings.TrimSpace(s.SelectSQL) == "" {
		return fmt.Errorf("%w: select sql cannot be empty", ErrInvalidSpec)
	}
	if strings.TrimSpace(s.UpdateSQL) == "" {
		return fmt.Errorf("%w: update sql cannot be empty", ErrInvalidSpec)
	}
	if s.BatchSize < 0 {
		return fmt.Errorf("%w: batch size cannot be negative", ErrInvalidSpec)
	}
	if _, err := countPlaceholders(s.UpdateSQL); err != nil {
		return fmt.Errorf("%w: update sql: %v", ErrInvalidSpec, err)
	}
	return nil
}

func (s Spec) pluralName() string {
	if s.RowPluralName == "" {
		return "rows"
	}
	return s.RowPluralName
}

func (s Spec) batchSize() int {
	if s.BatchSize == 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// Result MassUpdate 的终止结果
type Result struct {
	Name      string
	State     State
	Progress  Progress
	BatchSize int
	Duration  time.Duration
	Err       error
}

// Complete 是否完整执行
func (r *Result) Complete() bool {
	return r != nil && r.State == StateCompleted
}

// Observer 观察执行过程的旁路（日志之外的指标等），不影响正确性
type Observer interface {
	// Progressed 周期性进度
	Progressed(name string, p Progress)
	// BatchFlushed 每个批次提交或回滚后
	BatchFlushed(name string, size int, elapsed time.Duration, err error)
	// Finished 进入终止状态后
	Finished(res *Result)
}

// NopObserver 什么也不做的 Observer
type NopObserver struct{}

func (NopObserver) Progressed(string, Progress) {}
func (NopObserver) BatchFlushed(string, int, time.Duration, error) {}
func (NopObserver) Finished(*Result) {}

// Option MassUpdate 的可选配置
type Option func(m *MassUpdate)

func WithLogger(logger *logrus.Entry) Option {
	return func(m *MassUpdate) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(m *MassUpdate) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithProgressInterval d <= 0 时关闭周期性进度日志
func WithProgressInterval(d time.Duration) Option {
	return func(m *MassUpdate) {
		m.progressInterval = d
	}
}

// MassUpdate 驱动游标、调用 Handler 并把结果交给写入批次
//
// 单个 goroutine 顺序执行：行按读取顺序写入，不支持并发调用。
type MassUpdate struct {
	db               Database
	spec             Spec
	arity            int
	logger           *logrus.Entry
	observer         Observer
	progressInterval time.Duration

	state    State
	counters counters
}

// New 创建 MassUpdate，spec 不合法时返回 ErrInvalidSpec
func New(db Database, spec Spec, opts ...Option) (*MassUpdate, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database cannot be nil", ErrInvalidSpec)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := checkPool(db); err != nil {
		return nil, err
	}
	arity, _ := countPlaceholders(spec.UpdateSQL)

	m := &MassUpdate{
		db:               db,
		spec:             spec,
		arity:            arity,
		observer:         NopObserver{},
		progressInterval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logrus.WithField("component", "mass_update")
	}
	if spec.Name != "" {
		m.logger = m.logger.WithField("mass_update", spec.Name)
	}
	return m, nil
}

// Spec 返回配置
func (m *MassUpdate) Spec() Spec { return m.spec }

// State 当前状态
func (m *MassUpdate) State() State { return m.state }

// Progress 当前进度，执行期间也可以从其他 goroutine 读取
func (m *MassUpdate) Progress() Progress { return m.counters.snapshot() }

// Execute 执行 MassUpdate
//
// Completed 与 Aborted 返回 nil 错误，通过 Result.State 区分；
// Failed 返回 *ExecutionError，可以用 errors.Is 判断 ErrRead/ErrBind/ErrWrite/ErrHandler。
// 失败前已提交的批次保持持久，不做重试。
func (m *MassUpdate) Execute(ctx context.Context, h Handler) (*Result, error) {
	if m.state != StateIdle {
		return nil, ErrAlreadyExecuted
	}
	if h == nil {
		return nil, fmt.Errorf("%w: handler cannot be nil", ErrInvalidSpec)
	}
	if err := checkPool(m.db); err != nil {
		return nil, err
	}
	m.state = StateRunning
	start := time.Now()

	state, err := m.run(ctx, h)
	m.state = state

	res := &Result{
		Name:      m.spec.Name,
		State:     state,
		Progress:  m.counters.snapshot(),
		BatchSize: m.spec.batchSize(),
		Duration:  time.Since(start),
	}
	if err != nil {
		err = &ExecutionError{Name: m.spec.Name, Progress: res.Progress, Err: err}
		res.Err = err
	}
	m.logResult(res)
	m.observer.Progressed(m.spec.Name, res.Progress)
	m.observer.Finished(res)
	return res, err
}

func (m *MassUpdate) run(ctx context.Context, h Handler) (State, error) {
	cursor, err := OpenCursor(ctx, m.db, m.spec.SelectSQL, m.spec.SelectArgs...)
	if err != nil {
		return StateFailed, err
	}
	defer cursor.Close()

	batch := NewUpdateBatch(m.db, m.spec.UpdateSQL, m.spec.batchSize())
	batch.OnFlush(func(size int, elapsed time.Duration, err error) {
		m.counters.batches.Add(1)
		if err == nil {
			m.counters.written.Add(int64(size))
		}
		m.observer.BatchFlushed(m.spec.Name, size, elapsed, err)
	})

	progress := m.startProgressLogger(ctx)
	defer progress.stop()

	update := newUpdate(m.arity)
	for cursor.Next() {
		row := cursor.Row()
		m.counters.read.Add(1)
		update.reset()

		signal, err := h.Handle(row, update)
		if err != nil {
			return StateFailed, fmt.Errorf("%w: row %d: %w", ErrHandler, m.counters.read.Load(), err)
		}
		if rowErr := row.Err(); rowErr != nil {
			return StateFailed, fmt.Errorf("%w: row %d: %w", ErrRead, m.counters.read.Load(), rowErr)
		}
		// 绑定错误与返回的信号无关，Skip 和 Stop 同样失败
		if bindErr := update.Err(); bindErr != nil {
			return StateFailed, fmt.Errorf("%w: row %d: %w", ErrBind, m.counters.read.Load(), bindErr)
		}

		switch signal {
		case Apply:
			args, err := update.args()
			if err != nil {
				return StateFailed, fmt.Errorf("%w: row %d: %w", ErrBind, m.counters.read.Load(), err)
			}
			m.counters.updated.Add(1)
			if err := batch.Add(ctx, args); err != nil {
				return StateFailed, err
			}
		case Skip:
			m.counters.skipped.Add(1)
		case Stop:
			// 丢弃当前行，已经入队的完整行照常提交
			m.logger.WithField("row", m.counters.read.Load()).Warn("handler requested stop, remaining rows are not processed")
			if err := batch.Flush(ctx); err != nil {
				return StateFailed, err
			}
			return StateAborted, nil
		default:
			return StateFailed, fmt.Errorf("%w: row %d: unknown signal %d", ErrHandler, m.counters.read.Load(), signal)
		}
	}
	if err := cursor.Err(); err != nil {
		return StateFailed, err
	}
	if err := batch.Flush(ctx); err != nil {
		return StateFailed, err
	}
	return StateCompleted, nil
}

func (m *MassUpdate) logResult(res *Result) {
	entry := m.logger.WithFields(logrus.Fields{
		"state":    res.State.String(),
		"read":     res.Progress.Read,
		"updated":  res.Progress.Updated,
		"skipped":  res.Progress.Skipped,
		"written":  res.Progress.Written,
		"batches":  res.Progress.Batches,
		"duration": res.Duration.String(),
	})
	switch res.State {
	case StateCompleted:
		entry.Infof("%d %s updated", res.Progress.Written, m.spec.pluralName())
	case StateAborted:
		entry.Warnf("mass update stopped early, %d %s updated", res.Progress.Written, m.spec.pluralName())
	default:
		var batchErr *BatchError
		if errors.As(res.Err, &batchErr) {
			entry = entry.WithField("failed_batch", batchErr.Batch)
		}
		entry.WithError(res.Err).Error("mass update failed")
	}
}
