package livestate

import (
	"github.com/bililive-go/datachange/src/pkg/datachange"
	"github.com/bililive-go/datachange/src/pkg/migration"
)

// DatabaseTypeLiveState 直播间状态数据库类型
const DatabaseTypeLiveState = migration.DatabaseTypeLiveState

// LiveStateDatabaseSchema 直播间状态数据库模式定义
// 数据变更步骤的顺序有意义：统计数据中的平台来自先补全的 live_rooms.platform。
var LiveStateDatabaseSchema = &migration.DatabaseSchema{
	Type:            DatabaseTypeLiveState,
	Category:        migration.CategoryCritical,
	MigrationSource: GetMigrationSource(),
	DataChanges: []datachange.DataChange{
		BackfillRoomPlatform,
		PopulateLiveSessionStats,
	},
	Description: "直播间状态数据库，存储直播间信息、开播/下播历史、名称变更历史和直播统计",
}

func init() {
	// 注册直播间状态数据库模式
	migration.MustRegisterSchema(LiveStateDatabaseSchema)
}
