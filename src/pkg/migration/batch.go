package migration

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	bilisentry "github.com/bililive-go/datachange/src/pkg/sentry"
)

// BatchMigrator 批量迁移器，用于迁移多个数据库文件
type BatchMigrator struct {
	configs []*MigrationConfig
	logger  *logrus.Entry
	mu      sync.Mutex
}

// BatchMigrationResult 批量迁移结果
type BatchMigrationResult struct {
	Results map[string]*MigrationResult
	Success bool
	Errors  []error
}

// NewBatchMigrator 创建批量迁移器
func NewBatchMigrator() *BatchMigrator {
	return &BatchMigrator{
		configs: make([]*MigrationConfig, 0),
		logger:  logrus.WithField("component", "batch_migrator"),
	}
}

// Add 添加迁移配置
func (b *BatchMigrator) Add(config *MigrationConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs = append(b.configs, config)
}

// AddMultiple 添加多个迁移配置
func (b *BatchMigrator) AddMultiple(configs []*MigrationConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs = append(b.configs, configs...)
}

// Run 执行所有迁移
// parallel 参数指定是否并行执行（每个数据库文件一个 goroutine，同一文件内的步骤仍然顺序执行）
func (b *BatchMigrator) Run(ctx context.Context, parallel bool) *BatchMigrationResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := &BatchMigrationResult{
		Results: make(map[string]*MigrationResult),
		Success: true,
	}
	if len(b.configs) == 0 {
		return result
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	record := func(config *MigrationConfig, migResult *MigrationResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		if migResult != nil {
			result.Results[config.DBPath] = migResult
		}
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Errorf("migration failed for %s: %w", config.DBPath, err))
		}
	}

	for _, config := range b.configs {
		if !parallel {
			migResult, err := b.migrate(ctx, config)
			record(config, migResult, err)
			continue
		}
		wg.Add(1)
		bilisentry.Go(func() {
			defer wg.Done()
			migResult, err := b.migrate(ctx, config)
			record(config, migResult, err)
		})
	}

	wg.Wait()
	return result
}

func (b *BatchMigrator) migrate(ctx context.Context, config *MigrationConfig) (*MigrationResult, error) {
	migrator, err := NewMigrator(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	// 先检查是否需要恢复
	recovered, err := migrator.CheckAndRecover()
	if err != nil {
		b.logger.WithError(err).WithField("db_path", config.DBPath).Warn("recovery check failed")
	}
	if recovered {
		b.logger.WithField("db_path", config.DBPath).Info("recovered from incomplete migration")
	}

	return migrator.Run(ctx)
}

// Clear 清空迁移配置
func (b *BatchMigrator) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs = make([]*MigrationConfig, 0)
}

// MigrateDatabase 便捷函数：迁移单个数据库
func MigrateDatabase(ctx context.Context, config *MigrationConfig) (*MigrationResult, error) {
	migrator, err := NewMigrator(config)
	if err != nil {
		return nil, err
	}

	if _, err := migrator.CheckAndRecover(); err != nil {
		logrus.WithError(err).WithField("db_path", config.DBPath).Warn("recovery check failed")
	}

	return migrator.Run(ctx)
}

// MigrateDatabaseByType 便捷函数：根据类型迁移数据库
func MigrateDatabaseByType(ctx context.Context, dbPath string, dbType DatabaseType) (*MigrationResult, error) {
	schema, err := GetSchema(dbType)
	if err != nil {
		return nil, err
	}

	return MigrateDatabase(ctx, &MigrationConfig{
		DBPath: dbPath,
		Schema: schema,
	})
}
