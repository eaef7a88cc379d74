package datachange

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bililive-go/datachange/src/pkg/massupdate"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "step.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range []string{
		"CREATE TABLE items (id INTEGER PRIMARY KEY, value INTEGER, migrated_at INTEGER)",
		"INSERT INTO items (id, value) VALUES (1, 10), (2, NULL), (3, 30), (4, 40), (5, 50)",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

var stampSpec = massupdate.Spec{
	SelectSQL:     "SELECT id FROM items WHERE migrated_at IS NULL ORDER BY id",
	UpdateSQL:     "UPDATE items SET migrated_at = ? WHERE id = ?",
	RowPluralName: "items",
}

func stampHandler(now time.Time) massupdate.Handler {
	return massupdate.HandlerFunc(func(row *massupdate.Row, u *massupdate.Update) (massupdate.Signal, error) {
		u.SetLong(1, now.UnixMilli())
		u.SetLong(2, row.GetLong(1))
		return massupdate.Apply, nil
	})
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

type memoryWatermarks map[string]string

func (m memoryWatermarks) GetWatermark(_ context.Context, step string) (string, bool, error) {
	v, ok := m[step]
	return v, ok, nil
}

func (m memoryWatermarks) SetWatermark(_ context.Context, step, value string) error {
	m[step] = value
	return nil
}

func TestRun_MassUpdateChange(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	change := NewMassUpdateChange("stamp_items", stampSpec, stampHandler)
	res := Run(context.Background(), change, Options{DB: db, Now: fixedClock(now), BatchSize: 2})

	require.NoError(t, res.AsError())
	assert.True(t, res.Success())
	assert.Equal(t, "stamp_items", res.Name)
	assert.Equal(t, now, res.StartedAt)
	assert.Equal(t, 1, res.MassUpdates)
	assert.Equal(t, massupdate.Progress{Read: 5, Updated: 5, Written: 5, Batches: 3}, res.Progress)

	var distinct int
	var stamp int64
	require.NoError(t, db.QueryRow("SELECT COUNT(DISTINCT migrated_at), MAX(migrated_at) FROM items").Scan(&distinct, &stamp))
	assert.Equal(t, 1, distinct)
	assert.Equal(t, now.UnixMilli(), stamp)

	// select 排除了已处理的行，再次执行不读取任何行
	res = Run(context.Background(), change, Options{DB: db, Now: fixedClock(now.Add(time.Hour))})
	require.NoError(t, res.AsError())
	assert.Equal(t, int64(0), res.Progress.Read)
}

func TestRun_Incomplete(t *testing.T) {
	db := openTestDB(t)

	change := NewMassUpdateChange("stop_early", stampSpec, func(now time.Time) massupdate.Handler {
		return massupdate.HandlerFunc(func(row *massupdate.Row, u *massupdate.Update) (massupdate.Signal, error) {
			if row.GetLong(1) == 3 {
				return massupdate.Stop, nil
			}
			return stampHandler(now).Handle(row, u)
		})
	})
	res := Run(context.Background(), change, Options{DB: db, BatchSize: 10})

	assert.Equal(t, StatusIncomplete, res.Status)
	assert.False(t, res.Success())
	assert.ErrorIs(t, res.AsError(), ErrIncomplete)
	assert.NoError(t, res.Err)
	assert.Equal(t, int64(2), res.Progress.Written)
}

func TestRun_Interrupt(t *testing.T) {
	db := openTestDB(t)
	interrupt, cancel := context.WithCancel(context.Background())
	cancel()

	change := NewMassUpdateChange("interrupted", stampSpec, stampHandler)
	res := Run(context.Background(), change, Options{DB: db, Interrupt: interrupt})

	assert.Equal(t, StatusIncomplete, res.Status)
	assert.Equal(t, int64(1), res.Progress.Read)
	assert.Equal(t, int64(0), res.Progress.Written)
}

func TestRun_Failure(t *testing.T) {
	db := openTestDB(t)

	spec := stampSpec
	spec.UpdateSQL = "UPDATE missing_table SET migrated_at = ? WHERE id = ?"
	res := Run(context.Background(), NewMassUpdateChange("broken", spec, stampHandler), Options{DB: db})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.AsError(), massupdate.ErrWrite)
	assert.Equal(t, int64(5), res.Progress.Read)
	assert.Equal(t, int64(0), res.Progress.Written)
}

func TestRun_InvalidSpec(t *testing.T) {
	db := openTestDB(t)

	res := Run(context.Background(), NewMassUpdateChange("invalid", massupdate.Spec{}, stampHandler), Options{DB: db})
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, massupdate.ErrInvalidSpec)

	res = Run(context.Background(), NewMassUpdateChange("no_db", stampSpec, stampHandler), Options{})
	assert.ErrorIs(t, res.Err, ErrInvalidStep)

	res = Run(context.Background(), nil, Options{DB: db})
	assert.ErrorIs(t, res.Err, ErrInvalidStep)
}

func TestRun_RecoversPanic(t *testing.T) {
	db := openTestDB(t)

	change := Func("panics", func(ctx context.Context, dc *Context) error {
		panic("unexpected state")
	})
	res := Run(context.Background(), change, Options{DB: db})

	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrPanic)
	assert.Contains(t, res.Err.Error(), "unexpected state")
}

func TestRun_FuncAggregatesMassUpdates(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	change := Func("two_passes", func(ctx context.Context, dc *Context) error {
		assert.Equal(t, now, dc.Now())
		assert.Equal(t, "two_passes", dc.Name())

		first := stampSpec
		first.Name = "odd"
		first.SelectSQL = "SELECT id FROM items WHERE id % 2 = 1"
		m, err := dc.PrepareMassUpdate(first)
		if err != nil {
			return err
		}
		assert.Equal(t, 7, m.Spec().BatchSize)
		if _, err := m.Execute(ctx, stampHandler(dc.Now())); err != nil {
			return err
		}

		m, err = dc.PrepareMassUpdate(stampSpec)
		if err != nil {
			return err
		}
		assert.Equal(t, "two_passes", m.Spec().Name)
		_, err = m.Execute(ctx, stampHandler(dc.Now()))
		return err
	})
	res := Run(context.Background(), change, Options{DB: db, Now: fixedClock(now), BatchSize: 7})

	require.NoError(t, res.AsError())
	assert.Equal(t, 2, res.MassUpdates)
	// 第一遍处理 1、3、5，第二遍只剩 2、4
	assert.Equal(t, int64(5), res.Progress.Read)
	assert.Equal(t, int64(5), res.Progress.Written)
}

func TestRun_PrepareAfterAbortedMassUpdate(t *testing.T) {
	db := openTestDB(t)
	var prepareErr error

	change := Func("stop_then_continue", func(ctx context.Context, dc *Context) error {
		m, err := dc.PrepareMassUpdate(stampSpec)
		if err != nil {
			return err
		}
		stopAtThree := massupdate.HandlerFunc(func(row *massupdate.Row, u *massupdate.Update) (massupdate.Signal, error) {
			if row.GetLong(1) == 3 {
				return massupdate.Stop, nil
			}
			return stampHandler(dc.Now()).Handle(row, u)
		})
		res, err := m.Execute(ctx, stopAtThree)
		if err != nil {
			return err
		}
		assert.Equal(t, massupdate.StateAborted, res.State)

		_, prepareErr = dc.PrepareMassUpdate(stampSpec)
		return prepareErr
	})
	res := Run(context.Background(), change, Options{DB: db, BatchSize: 10})

	assert.ErrorIs(t, prepareErr, ErrIncomplete)
	assert.Equal(t, StatusIncomplete, res.Status)
	assert.ErrorIs(t, res.AsError(), ErrIncomplete)
	assert.Equal(t, 1, res.MassUpdates)
	assert.Equal(t, int64(2), res.Progress.Written)
}

func TestRun_ReturnedIncompleteError(t *testing.T) {
	db := openTestDB(t)
	change := Func("partial", func(context.Context, *Context) error {
		return ErrIncomplete
	})
	res := Run(context.Background(), change, Options{DB: db})
	assert.Equal(t, StatusIncomplete, res.Status)
	assert.True(t, errors.Is(res.AsError(), ErrIncomplete))
}

func TestContext_Watermark(t *testing.T) {
	db := openTestDB(t)
	store := memoryWatermarks{}

	change := Func("with_watermark", func(ctx context.Context, dc *Context) error {
		_, ok, err := dc.Watermark(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		return dc.SetWatermark(ctx, "42")
	})
	require.NoError(t, Run(context.Background(), change, Options{DB: db, Checkpoints: store}).AsError())
	assert.Equal(t, "42", store["with_watermark"])

	noStore := Func("no_store", func(ctx context.Context, dc *Context) error {
		_, _, err := dc.Watermark(ctx)
		assert.ErrorIs(t, err, ErrNoCheckpoints)
		return dc.SetWatermark(ctx, "1")
	})
	res := Run(context.Background(), noStore, Options{DB: db})
	assert.ErrorIs(t, res.Err, ErrNoCheckpoints)
}
