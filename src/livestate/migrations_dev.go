//go:build dev

package livestate

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/bililive-go/datachange/src/pkg/migration"
)

// GetMigrationSource 获取直播间状态数据库迁移源（dev 模式直接读取源码目录，修改 SQL 无需重新编译）
func GetMigrationSource() migration.MigrationSource {
	return &migrationSource{
		open: func() (fs.FS, error) {
			_, currentFile, _, _ := runtime.Caller(0)
			return os.DirFS(filepath.Join(filepath.Dir(currentFile), "migrations")), nil
		},
	}
}
