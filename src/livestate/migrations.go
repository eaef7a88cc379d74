package livestate

import (
	"io/fs"

	"github.com/bililive-go/datachange/src/pkg/migration"
)

// migrationSource 直播间状态数据库迁移源，release 与 dev 构建只在文件来源上不同
type migrationSource struct {
	open     func() (fs.FS, error)
	embedded bool
}

func (s *migrationSource) GetFS() (fs.FS, error) {
	return s.open()
}

func (s *migrationSource) GetSubDir() string {
	return "."
}

func (s *migrationSource) IsEmbedded() bool {
	return s.embedded
}

var _ migration.MigrationSource = (*migrationSource)(nil)
