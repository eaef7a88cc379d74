package massupdate

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// openTestDB 在临时目录中打开 WAL 模式的 sqlite，游标和写入批次使用不同的连接
func openTestDB(t *testing.T, stmts ...string) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

func queryInts(t *testing.T, db *sql.DB, query string) []int64 {
	t.Helper()
	rows, err := db.Query(query)
	require.NoError(t, err)
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var v int64
		require.NoError(t, rows.Scan(&v))
		out = append(out, v)
	}
	require.NoError(t, rows.Err())
	return out
}

type flushRecord struct {
	size int
	err  error
}

// recordingObserver 记录观察到的事件
type recordingObserver struct {
	mu       sync.Mutex
	flushes  []flushRecord
	progress []Progress
	results  []*Result
}

func (o *recordingObserver) Progressed(_ string, p Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, p)
}

func (o *recordingObserver) BatchFlushed(_ string, size int, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushes = append(o.flushes, flushRecord{size: size, err: err})
}

func (o *recordingObserver) Finished(res *Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, res)
}

func (o *recordingObserver) flushSizes() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	sizes := make([]int, 0, len(o.flushes))
	for _, f := range o.flushes {
		sizes = append(sizes, f.size)
	}
	return sizes
}
