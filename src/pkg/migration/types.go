package migration

import (
	"context"
	"database/sql"
	"io/fs"
	"time"

	"github.com/bililive-go/datachange/src/pkg/datachange"
	"github.com/bililive-go/datachange/src/pkg/massupdate"
)

// DatabaseType 数据库类型
type DatabaseType string

const (
	// DatabaseTypeLiveState 直播状态数据库（直播间、场次、改名记录），需要强制备份
	DatabaseTypeLiveState DatabaseType = "livestate"
	// DatabaseTypeCustom 自定义类型数据库
	DatabaseTypeCustom DatabaseType = "custom"
)

// DatabaseCategory 数据库分类，决定迁移时的行为
type DatabaseCategory int

const (
	// CategoryCritical 关键数据，迁移时强制备份，失败时回滚
	CategoryCritical DatabaseCategory = iota
	// CategoryNormal 普通数据，迁移时可选备份
	CategoryNormal
	// CategoryDisposable 可丢弃数据（如日志），迁移失败可重建
	CategoryDisposable
)

func (c DatabaseCategory) String() string {
	switch c {
	case CategoryCritical:
		return "critical"
	case CategoryNormal:
		return "normal"
	case CategoryDisposable:
		return "disposable"
	}
	return "unknown"
}

// MigrationSource 迁移源（SQL文件来源）
type MigrationSource interface {
	// GetFS 返回迁移文件系统
	GetFS() (fs.FS, error)
	// GetSubDir 返回迁移文件在FS中的子目录（如果有）
	GetSubDir() string
	// IsEmbedded 返回迁移文件是否嵌入
	IsEmbedded() bool
}

// DatabaseSchema 数据库模式定义
type DatabaseSchema struct {
	// Type 数据库类型标识
	Type DatabaseType
	// Category 数据库分类，决定迁移行为
	Category DatabaseCategory
	// MigrationSource 迁移SQL文件来源
	MigrationSource MigrationSource
	// DataChanges 模式迁移完成后按顺序执行的数据变更步骤，步骤名在模式内唯一
	DataChanges []datachange.DataChange
	// Description 数据库描述
	Description string
}

// StepNames 返回所有数据变更步骤的名称
func (s *DatabaseSchema) StepNames() []string {
	names := make([]string, 0, len(s.DataChanges))
	for _, change := range s.DataChanges {
		names = append(names, change.Name())
	}
	return names
}

// MigrationConfig 迁移配置
type MigrationConfig struct {
	// DBPath 数据库文件路径
	DBPath string
	// Schema 数据库模式
	Schema *DatabaseSchema
	// ForceBackup 是否强制备份（覆盖Schema的默认行为）
	ForceBackup *bool
	// DB 可选的已打开数据库连接（如果为nil，则自动以 WAL 模式打开），连接池至少需要两个连接
	DB *sql.DB
	// AppVersion 当前程序版本，用于拒绝旧版本程序处理新版本迁移过的数据库
	AppVersion string
	// BatchSize 数据变更的默认批大小
	BatchSize int
	// ProgressInterval 数据变更的进度日志间隔
	ProgressInterval time.Duration
	// Observer 数据变更的指标收集
	Observer massupdate.Observer
	// Interrupt 结束后正在执行的数据变更在下一行停止（例如收到退出信号）
	Interrupt context.Context
	// Now 数据变更使用的时钟，默认 time.Now
	Now func() time.Time
}

// MigrationResult 迁移结果
type MigrationResult struct {
	// Success 是否成功（模式迁移和所有数据变更都已完成）
	Success bool
	// FromVersion 迁移前版本
	FromVersion uint
	// ToVersion 迁移后版本
	ToVersion uint
	// BackupPath 备份文件路径（如果有）
	BackupPath string
	// Error 错误信息
	Error error
	// WasDirty 迁移前是否处于脏状态
	WasDirty bool
	// Steps 本次执行的数据变更步骤结果
	Steps []*datachange.StepResult
	// SkippedSteps 之前已经成功、本次跳过的步骤
	SkippedSteps []string
}

// LockInfo 锁文件信息
type LockInfo struct {
	// DBPath 正在迁移的数据库路径
	DBPath string `json:"db_path"`
	// BackupPath 备份文件路径
	BackupPath string `json:"backup_path"`
	// StartTime 迁移开始时间
	StartTime string `json:"start_time"`
	// FromVersion 迁移前版本
	FromVersion uint `json:"from_version"`
	// PID 进程ID
	PID int `json:"pid"`
	// SchemaType 数据库类型
	SchemaType DatabaseType `json:"schema_type"`
	// CurrentStep 正在执行的数据变更步骤
	CurrentStep string `json:"current_step,omitempty"`
}
