package massupdate

import (
	"context"
	"fmt"
	"time"
)

// DefaultBatchSize 每次提交的默认行数
const DefaultBatchSize = 250

// FlushFunc 每个批次结束（提交或回滚）后的回调
type FlushFunc func(size int, elapsed time.Duration, err error)

// UpdateBatch 累积绑定好的参数组，达到批大小后在一个事务内执行并提交
//
// 批次之间没有原子性：已提交的批次是持久的，失败的批次整体回滚。
type UpdateBatch struct {
	db      Beginner
	query   string
	size    int
	pending [][]any
	flushes int
	written int64
	onFlush FlushFunc
}

// NewUpdateBatch size <= 1 时退化为逐行提交
func NewUpdateBatch(db Beginner, query string, size int) *UpdateBatch {
	if size < 1 {
		size = 1
	}
	return &UpdateBatch{
		db:      db,
		query:   query,
		size:    size,
		pending: make([][]any, 0, size),
	}
}

// OnFlush 设置批次回调
func (b *UpdateBatch) OnFlush(f FlushFunc) {
	b.onFlush = f
}

// Size 批大小
func (b *UpdateBatch) Size() int { return b.size }

// Pending 尚未提交的参数组数量
func (b *UpdateBatch) Pending() int { return len(b.pending) }

// Flushes 已执行的批次数（包括失败的批次）
func (b *UpdateBatch) Flushes() int { return b.flushes }

// Written 已提交的参数组数量
func (b *UpdateBatch) Written() int64 { return b.written }

// Add 加入一组参数，缓冲区满时立即提交
func (b *UpdateBatch) Add(ctx context.Context, args []any) error {
	b.pending = append(b.pending, args)
	if len(b.pending) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush 提交缓冲区中的所有参数组，缓冲区为空时什么也不做
func (b *UpdateBatch) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	b.flushes++
	size := len(b.pending)
	start := time.Now()

	err := b.execute(ctx)
	b.pending = b.pending[:0]
	if b.onFlush != nil {
		b.onFlush(size, time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, &BatchError{Batch: b.flushes, Size: size, Err: err})
	}
	b.written += int64(size)
	return nil
}

func (b *UpdateBatch) execute(ctx context.Context) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, b.query)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, args := range b.pending {
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("exec row %d of batch: %w", i+1, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
