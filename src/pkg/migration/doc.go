// Package migration 提供数据库迁移的执行框架
//
// 一次迁移分为两个阶段：
//
// 1. 模式迁移：使用 golang-migrate 执行迁移源中的 SQL 文件
// 2. 数据变更：按注册顺序执行 DatabaseSchema.DataChanges 中的步骤，
// 每个步骤的结果记录在数据库的检查点表中，已成功的步骤不会重复执行
//
// 关键数据库（CategoryCritical）在迁移前通过 VACUUM INTO 备份，模式迁移失败时自动回滚；
// 锁文件防止并发迁移，并记录正在执行的步骤，进程中途退出后由 CheckAndRecover 处理。
//
// 基本使用示例：
//
//	migration.MustRegisterSchema(&migration.DatabaseSchema{
//	    Type:            migration.DatabaseTypeLiveState,
//	    Category:        migration.CategoryCritical,
//	    MigrationSource: &MyMigrationSource{},
//	    DataChanges:     []datachange.DataChange{populateStats},
//	})
//
//	result, err := migration.MigrateDatabaseByType(ctx, "/path/to/db.sqlite", migration.DatabaseTypeLiveState)
//
// 批量迁移示例：
//
//	batcher := migration.NewBatchMigrator()
//	batcher.Add(&migration.MigrationConfig{DBPath: "/path/to/db1.sqlite", Schema: schema1})
//	batcher.Add(&migration.MigrationConfig{DBPath: "/path/to/db2.sqlite", Schema: schema2})
//	result := batcher.Run(ctx, true) // 并行执行
package migration
