package massupdate

import (
	"errors"
	"fmt"
)

var (
	// ErrRead 游标读取失败，或行数据不满足访问约定
	ErrRead = errors.New("mass update read failed")
	// ErrBind 参数绑定错误（序号越界、未绑定）
	ErrBind = errors.New("mass update bind failed")
	// ErrWrite 批量写入或提交失败，当前批次已回滚
	ErrWrite = errors.New("mass update write failed")
	// ErrHandler 行处理函数返回了错误
	ErrHandler = errors.New("mass update handler failed")
	// ErrAlreadyExecuted 同一个 MassUpdate 只能执行一次
	ErrAlreadyExecuted = errors.New("mass update already executed")
	// ErrInvalidSpec 配置不合法
	ErrInvalidSpec = errors.New("invalid mass update spec")

	ErrNullValue      = errors.New("unexpected null value")
	ErrUnexpectedType = errors.New("unexpected value type")
	ErrOrdinal        = errors.New("ordinal out of range")
	ErrUnbound        = errors.New("parameter not bound")
)

// FieldError 某个序号上的访问或绑定错误
type FieldError struct {
	// Ordinal 从 1 开始的序号
	Ordinal int
	// Column 列名（绑定参数时为空）
	Column string
	// Expected 访问者期望的类型
	Expected Kind
	Err      error
}

func (e *FieldError) Error() string {
	target := fmt.Sprintf("parameter %d", e.Ordinal)
	if e.Column != "" {
		target = fmt.Sprintf("column %d (%s)", e.Ordinal, e.Column)
	}
	if e.Expected != KindNull {
		target += " as " + e.Expected.String()
	}
	return target + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// BatchError 描述失败的批次，该批次的事务已经回滚
type BatchError struct {
	// Batch 从 1 开始的批次编号
	Batch int
	// Size 批次中的参数组数量
	Size int
	Err  error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d rows) rolled back: %v", e.Batch, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// ExecutionError 导致 MassUpdate 进入 Failed 状态的错误，附带失败时的进度
type ExecutionError struct {
	Name     string
	Progress Progress
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("mass update %q failed after %d rows read (%d updated, %d skipped, %d written): %v",
		e.Name, e.Progress.Read, e.Progress.Updated, e.Progress.Skipped, e.Progress.Written, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
