package massupdate

import (
	"context"
	"database/sql"
	"fmt"
)

type (
	// Queryer 可以发起查询的连接
	Queryer interface {
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	}

	// Beginner 可以开启事务的连接
	Beginner interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}

	// Database MassUpdate 需要的连接能力
	// 游标和写入批次各自占用一个连接，连接池至少需要允许两个连接。
	Database interface {
		Queryer
		Beginner
	}
)

var _ Database = (*sql.DB)(nil)

// checkPool 游标占用一个连接，写入批次需要另一个；
// 连接池只允许一个连接时 BeginTx 会一直等待游标释放连接
func checkPool(db Database) error {
	pool, ok := db.(interface{ Stats() sql.DBStats })
	if !ok {
		return nil
	}
	if pool.Stats().MaxOpenConnections == 1 {
		return fmt.Errorf("%w: connection pool allows a single connection, the cursor and the update batch need two", ErrInvalidSpec)
	}
	return nil
}

// Cursor 只进的流式结果集，每次 Next 只持有一行
type Cursor struct {
	rows *sql.Rows
	dest []any
	raw  []any
	row  Row
	err  error
	done bool
}

// OpenCursor 执行 select 并返回游标，调用方负责 Close
func OpenCursor(ctx context.Context, db Queryer, query string, args ...any) (*Cursor, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrRead, err)
	}
	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("%w: columns: %w", ErrRead, err)
	}

	c := &Cursor{
		rows: rows,
		dest: make([]any, len(columns)),
		raw:  make([]any, len(columns)),
		row: Row{
			columns: columns,
			values:  make([]Value, len(columns)),
		},
	}
	for i := range c.raw {
		c.dest[i] = &c.raw[i]
	}
	return c, nil
}

// Next 前进到下一行；结果集耗尽或出错时返回 false，之后一直返回 false
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	if !c.rows.Next() {
		c.done = true
		if err := c.rows.Err(); err != nil {
			c.err = fmt.Errorf("%w: next: %w", ErrRead, err)
		}
		return false
	}
	if err := c.rows.Scan(c.dest...); err != nil {
		c.done = true
		c.err = fmt.Errorf("%w: scan: %w", ErrRead, err)
		return false
	}
	for i, src := range c.raw {
		v, err := valueOf(src)
		if err != nil {
			c.done = true
			c.err = fmt.Errorf("%w: %w", ErrRead, &FieldError{Ordinal: i + 1, Column: c.row.columns[i], Err: err})
			return false
		}
		c.row.values[i] = v
		c.raw[i] = nil
	}
	c.row.err = nil
	return true
}

// Row 当前行，仅在 Next 返回 true 之后、下一次 Next 之前有效
func (c *Cursor) Row() *Row {
	return &c.row
}

// Err 迭代过程中遇到的错误
func (c *Cursor) Err() error {
	return c.err
}

// Close 释放结果集，剩余的行不再读取
func (c *Cursor) Close() error {
	c.done = true
	return c.rows.Close()
}
