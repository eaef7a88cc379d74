package datachange

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/datachange/src/pkg/massupdate"
	bilisentry "github.com/bililive-go/datachange/src/pkg/sentry"
)

var (
	// ErrIncomplete 步骤被 Stop 截断，没有处理完所有行
	ErrIncomplete = errors.New("data change incomplete")
	// ErrInvalidStep 步骤或执行配置不合法
	ErrInvalidStep = errors.New("invalid data change")
	// ErrPanic 步骤执行时发生 panic
	ErrPanic = errors.New("data change panicked")
)

// Status 步骤的执行结果
type Status string

const (
	StatusSucceeded  Status = "succeeded"
	StatusIncomplete Status = "incomplete"
	StatusFailed     Status = "failed"
)

// Options 执行步骤的配置
type Options struct {
	// DB 步骤读写的数据库，连接池至少需要两个连接
	DB massupdate.Database
	// Now 取得步骤统一时间的时钟，默认 time.Now
	Now func() time.Time
	// BatchSize 默认批大小，0 表示 massupdate.DefaultBatchSize
	BatchSize int
	// ProgressInterval 进度日志间隔，0 表示 massupdate.DefaultProgressInterval，负数关闭
	ProgressInterval time.Duration
	Logger           *logrus.Entry
	Observer         massupdate.Observer
	// Checkpoints 水位线存储，可以为空
	Checkpoints WatermarkStore
	// Interrupt 结束后正在执行的 MassUpdate 在下一行停止
	Interrupt context.Context
}

func (o Options) withDefaults() Options {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.ProgressInterval == 0 {
		o.ProgressInterval = massupdate.DefaultProgressInterval
	}
	if o.Logger == nil {
		o.Logger = logrus.WithField("component", "data_change")
	}
	if o.Observer == nil {
		o.Observer = massupdate.NopObserver{}
	}
	return o
}

// StepResult 一次步骤执行的结果
type StepResult struct {
	Name     string
	Status   Status
	Progress massupdate.Progress
	// MassUpdates 步骤内执行的 MassUpdate 数量
	MassUpdates int
	StartedAt   time.Time
	Duration    time.Duration
	Err         error
}

// Success 是否成功完成
func (r *StepResult) Success() bool {
	return r != nil && r.Status == StatusSucceeded
}

// AsError 成功时返回 nil，未完成时返回 ErrIncomplete，失败时返回原因
func (r *StepResult) AsError() error {
	switch r.Status {
	case StatusSucceeded:
		return nil
	case StatusIncomplete:
		if r.Err != nil {
			return r.Err
		}
		return fmt.Errorf("%w: %s", ErrIncomplete, r.Name)
	}
	return r.Err
}

// Run 执行一个步骤
//
// 步骤开始时取一次 Now，之后所有行都使用这个值。
// 步骤内的 panic 会被恢复并作为失败返回。
func Run(ctx context.Context, change DataChange, opts Options) (res *StepResult) {
	opts = opts.withDefaults()
	if change == nil {
		return &StepResult{Status: StatusFailed, Err: fmt.Errorf("%w: data change cannot be nil", ErrInvalidStep)}
	}
	res = &StepResult{Name: change.Name()}
	if opts.DB == nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: %s: database cannot be nil", ErrInvalidStep, res.Name)
		return res
	}

	res.StartedAt = opts.Now()
	dc := newContext(res.Name, res.StartedAt, opts)
	logger := dc.Logger()
	logger.Info("executing data change")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("stack", string(debug.Stack())).Errorf("data change panicked: %v", r)
			res.Err = fmt.Errorf("%w: %s: %v", ErrPanic, res.Name, r)
			res.Status = StatusFailed
		}
		res.Progress = dc.Progress()
		res.MassUpdates = dc.massUpdates
		res.Duration = time.Since(start)
		logResult(logger, res)
		if res.Status == StatusFailed {
			bilisentry.CaptureStepFailure(res.Err,
				map[string]string{"step": res.Name},
				map[string]interface{}{
					"read":    res.Progress.Read,
					"written": res.Progress.Written,
				})
		}
	}()

	err := change.Execute(ctx, dc)
	switch {
	case err == nil && dc.incomplete:
		res.Status = StatusIncomplete
	case err == nil:
		res.Status = StatusSucceeded
	case errors.Is(err, ErrIncomplete):
		res.Status = StatusIncomplete
		res.Err = err
	default:
		res.Status = StatusFailed
		res.Err = err
	}
	return res
}

func logResult(logger *logrus.Entry, res *StepResult) {
	entry := logger.WithFields(logrus.Fields{
		"status":       string(res.Status),
		"read":         res.Progress.Read,
		"written":      res.Progress.Written,
		"mass_updates": res.MassUpdates,
		"duration":     res.Duration.String(),
	})
	switch res.Status {
	case StatusSucceeded:
		entry.Info("data change succeeded")
	case StatusIncomplete:
		entry.Warn("data change incomplete, it must be run again")
	default:
		entry.WithError(res.Err).Error("data change failed")
	}
}
