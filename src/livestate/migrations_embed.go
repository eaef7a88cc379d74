//go:build !dev

package livestate

import (
	"embed"
	"io/fs"

	"github.com/bililive-go/datachange/src/pkg/migration"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// GetMigrationSource 获取直播间状态数据库迁移源（release 模式使用嵌入文件）
func GetMigrationSource() migration.MigrationSource {
	return &migrationSource{
		open: func() (fs.FS, error) {
			return fs.Sub(embeddedMigrations, "migrations")
		},
		embedded: true,
	}
}
