package massupdate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateBatch_FlushesAtSize(t *testing.T) {
	db := openTestDB(t, "CREATE TABLE t (id INTEGER PRIMARY KEY, v INTEGER)")
	ctx := context.Background()

	var sizes []int
	b := NewUpdateBatch(db, "INSERT INTO t (id, v) VALUES (?, ?)", 2)
	b.OnFlush(func(size int, _ time.Duration, err error) {
		assert.NoError(t, err)
		sizes = append(sizes, size)
	})

	for i := 1; i <= 5; i++ {
		require.NoError(t, b.Add(ctx, []any{int64(i), int64(i * 10)}))
	}
	assert.Equal(t, 1, b.Pending())
	assert.Equal(t, int64(4), b.Written())

	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 0, b.Pending())
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, 3, b.Flushes())
	assert.Equal(t, int64(5), b.Written())

	assert.Equal(t, []int64{10, 20, 30, 40, 50}, queryInts(t, db, "SELECT v FROM t ORDER BY id"))

	// 空缓冲区不产生批次
	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, 3, b.Flushes())
}

func TestUpdateBatch_MinimumSize(t *testing.T) {
	b := NewUpdateBatch(nil, "", 0)
	assert.Equal(t, 1, b.Size())
	b = NewUpdateBatch(nil, "", -5)
	assert.Equal(t, 1, b.Size())
}

func TestUpdateBatch_RollbackOnFailure(t *testing.T) {
	db := openTestDB(t, "CREATE TABLE t (id INTEGER PRIMARY KEY, v INTEGER CHECK (v < 100))")
	ctx := context.Background()

	b := NewUpdateBatch(db, "INSERT INTO t (id, v) VALUES (?, ?)", 3)
	require.NoError(t, b.Add(ctx, []any{int64(1), int64(1)}))
	require.NoError(t, b.Add(ctx, []any{int64(2), int64(2)}))
	err := b.Add(ctx, []any{int64(3), int64(300)})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrWrite)
	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 1, batchErr.Batch)
	assert.Equal(t, 3, batchErr.Size)
	assert.Contains(t, batchErr.Error(), "exec row 3 of batch")

	// 整个批次回滚，前两行也不可见
	assert.Empty(t, queryInts(t, db, "SELECT v FROM t"))
	assert.Equal(t, int64(0), b.Written())
}
