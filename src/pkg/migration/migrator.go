package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"

	"github.com/bililive-go/datachange/src/pkg/checkpoint"
	"github.com/bililive-go/datachange/src/pkg/datachange"
	bilisentry "github.com/bililive-go/datachange/src/pkg/sentry"
)

var (
	// ErrMigrationFailed 迁移失败错误
	ErrMigrationFailed = errors.New("migration failed")
	// ErrDataChangeFailed 数据变更步骤失败或未完成
	ErrDataChangeFailed = errors.New("data change failed")
	// ErrRollbackFailed 回滚失败错误
	ErrRollbackFailed = errors.New("rollback failed")
	// ErrLocked 数据库被锁定错误
	ErrLocked = errors.New("database is locked by another migration")
	// ErrNoBackup 无备份可回滚错误
	ErrNoBackup = errors.New("no backup available for rollback")
)

// DSN 返回以 WAL 模式打开 sqlite 的连接串
// 数据变更时游标和写入批次各占一个连接，WAL 模式下读写互不阻塞。
func DSN(path string) string {
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}

// OpenDB 打开数据库文件
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// Migrator 数据库迁移器
type Migrator struct {
	config        *MigrationConfig
	lockManager   *LockManager
	backupManager *BackupManager
	logger        *logrus.Entry
}

// NewMigrator 创建迁移器
func NewMigrator(config *MigrationConfig) (*Migrator, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.DBPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if config.Schema == nil {
		return nil, fmt.Errorf("schema cannot be nil")
	}

	return &Migrator{
		config:        config,
		lockManager:   NewLockManager(config.DBPath),
		backupManager: NewBackupManager(config.DBPath),
		logger: logrus.WithFields(logrus.Fields{
			"component":   "migrator",
			"db_path":     config.DBPath,
			"schema_type": config.Schema.Type,
		}),
	}, nil
}

// shouldBackup 判断是否需要备份
func (m *Migrator) shouldBackup() bool {
	if m.config.ForceBackup != nil {
		return *m.config.ForceBackup
	}
	return m.config.Schema.Category == CategoryCritical
}

// openDB 返回配置中的连接或新打开的连接，close 可以重复调用
func (m *Migrator) openDB() (db *sql.DB, closeDB func(), err error) {
	if m.config.DB != nil {
		return m.config.DB, func() {}, nil
	}
	db, err = OpenDB(m.config.DBPath)
	if err != nil {
		return nil, nil, err
	}
	var once sync.Once
	return db, func() { once.Do(func() { db.Close() }) }, nil
}

func (m *Migrator) newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	migrationsFS, err := m.config.Schema.MigrationSource.GetFS()
	if err != nil {
		return nil, fmt.Errorf("failed to get migrations fs: %w", err)
	}

	subDir := m.config.Schema.MigrationSource.GetSubDir()
	if subDir == "" {
		subDir = "."
	}
	sourceDriver, err := iofs.New(migrationsFS, subDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	mig, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mig, nil
}

// Run 执行迁移：备份、模式迁移、版本检查，然后依次执行尚未成功的数据变更步骤
//
// 模式迁移失败时从备份回滚。数据变更步骤失败或未完成时停止执行后续步骤，
// 已提交的批次保留，下次运行时从该步骤重新开始。
func (m *Migrator) Run(ctx context.Context) (*MigrationResult, error) {
	result := &MigrationResult{}

	if m.lockManager.IsLocked() {
		lockInfo, err := m.lockManager.GetLockInfo()
		if err != nil {
			return nil, fmt.Errorf("%w: cannot read lock info: %v", ErrLocked, err)
		}
		return nil, fmt.Errorf("%w: started at %s (PID: %d)",
			ErrLocked, lockInfo.StartTime, lockInfo.PID)
	}

	if err := os.MkdirAll(filepath.Dir(m.config.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, closeDB, err := m.openDB()
	if err != nil {
		return nil, err
	}
	defer closeDB()

	// 在任何写入之前备份
	var backupPath string
	if m.shouldBackup() {
		backupPath, err = m.backupManager.CreateBackup(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupPath = backupPath
	}

	mig, err := m.newMigrate(db)
	if err != nil {
		return nil, err
	}

	currentVersion, dirty, _ := mig.Version()
	result.FromVersion = currentVersion
	result.WasDirty = dirty

	lockInfo := CreateLockInfo(m.config.DBPath, backupPath, currentVersion, m.config.Schema.Type)
	if err := m.lockManager.Acquire(lockInfo); err != nil {
		m.backupManager.RemoveBackup(backupPath)
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer m.lockManager.Release()

	store, err := checkpoint.New(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := store.CheckAppVersion(ctx, m.config.AppVersion); err != nil {
		result.Error = err
		return result, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		result.Error = err
		bilisentry.CaptureException(err)

		if backupPath != "" && m.shouldBackup() {
			m.logger.WithError(err).Error("migration failed, attempting rollback")
			closeDB()
			if rollbackErr := m.backupManager.RestoreBackup(backupPath); rollbackErr != nil {
				m.logger.WithError(rollbackErr).Error("rollback failed")
				return result, fmt.Errorf("%w: %v (rollback also failed: %v)",
					ErrMigrationFailed, err, rollbackErr)
			}
			m.logger.Info("rollback completed successfully")
		}

		return result, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	newVersion, _, _ := mig.Version()
	result.ToVersion = newVersion

	if currentVersion != newVersion {
		m.logger.WithFields(logrus.Fields{
			"from_version": currentVersion,
			"to_version":   newVersion,
			"was_dirty":    dirty,
			"backup_path":  backupPath,
			"embedded":     m.config.Schema.MigrationSource.IsEmbedded(),
		}).Info("database migration completed")
	} else {
		m.logger.WithFields(logrus.Fields{
			"version":  newVersion,
			"embedded": m.config.Schema.MigrationSource.IsEmbedded(),
		}).Debug("database schema is up to date")
	}

	if err := m.runDataChanges(ctx, db, store, result); err != nil {
		result.Error = err
		return result, err
	}

	result.Success = true
	return result, nil
}

func (m *Migrator) runDataChanges(ctx context.Context, db *sql.DB, store *checkpoint.Store, result *MigrationResult) error {
	opts := datachange.Options{
		DB:               db,
		Now:              m.config.Now,
		BatchSize:        m.config.BatchSize,
		ProgressInterval: m.config.ProgressInterval,
		Logger:           m.logger,
		Observer:         m.config.Observer,
		Checkpoints:      store,
		Interrupt:        m.config.Interrupt,
	}

	for _, change := range m.config.Schema.DataChanges {
		name := change.Name()
		rec, ok, err := store.GetStep(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to read step history: %w", err)
		}
		if ok && rec.Status == string(datachange.StatusSucceeded) {
			m.logger.WithField("step", name).Debug("data change already applied")
			result.SkippedSteps = append(result.SkippedSteps, name)
			continue
		}

		if err := m.lockManager.SetCurrentStep(name); err != nil {
			m.logger.WithError(err).Warn("failed to update lock file")
		}

		step := datachange.Run(ctx, change, opts)
		result.Steps = append(result.Steps, step)

		// 即使 ctx 已取消也要记录结果
		if err := store.RecordStep(context.WithoutCancel(ctx), m.stepRecord(step)); err != nil {
			m.logger.WithError(err).WithField("step", name).Warn("failed to record data change")
		}

		if !step.Success() {
			return fmt.Errorf("%w: %s: %w", ErrDataChangeFailed, name, step.AsError())
		}
	}
	return nil
}

func (m *Migrator) stepRecord(step *datachange.StepResult) checkpoint.StepRecord {
	rec := checkpoint.StepRecord{
		Name:       step.Name,
		Status:     string(step.Status),
		Read:       step.Progress.Read,
		Updated:    step.Progress.Updated,
		Skipped:    step.Progress.Skipped,
		Written:    step.Progress.Written,
		Batches:    step.Progress.Batches,
		StartedAt:  step.StartedAt,
		FinishedAt: time.Now(),
		AppVersion: m.config.AppVersion,
	}
	if step.Err != nil {
		rec.Error = step.Err.Error()
	}
	return rec
}

// Steps 返回数据库中记录的数据变更历史
func (m *Migrator) Steps(ctx context.Context) ([]checkpoint.StepRecord, error) {
	db, closeDB, err := m.openDB()
	if err != nil {
		return nil, err
	}
	defer closeDB()

	store, err := checkpoint.New(ctx, db)
	if err != nil {
		return nil, err
	}
	return store.ListSteps(ctx)
}

// Rollback 从备份回滚数据库，调用前需要关闭其他连接
func (m *Migrator) Rollback() error {
	if m.lockManager.IsLocked() {
		lockInfo, err := m.lockManager.GetLockInfo()
		if err != nil {
			return fmt.Errorf("failed to read lock info: %w", err)
		}

		if lockInfo.BackupPath == "" {
			return ErrNoBackup
		}

		m.logger.WithField("backup_path", lockInfo.BackupPath).Info("rolling back from lock file info")
		if err := m.backupManager.RestoreBackup(lockInfo.BackupPath); err != nil {
			return fmt.Errorf("%w: %v", ErrRollbackFailed, err)
		}

		m.lockManager.Release()
		return nil
	}

	latestBackup, err := m.backupManager.GetLatestBackup()
	if err != nil {
		return fmt.Errorf("failed to get latest backup: %w", err)
	}
	if latestBackup == "" {
		return ErrNoBackup
	}

	m.logger.WithField("backup_path", latestBackup).Info("rolling back from latest backup")
	if err := m.backupManager.RestoreBackup(latestBackup); err != nil {
		return fmt.Errorf("%w: %v", ErrRollbackFailed, err)
	}

	return nil
}

// CheckAndRecover 检查并恢复未完成的迁移
// 如果发现锁文件存在（表示上次迁移未正常完成），关键数据库从备份回滚，其他数据库只清除锁
func (m *Migrator) CheckAndRecover() (bool, error) {
	if !m.lockManager.IsLocked() {
		return false, nil
	}

	lockInfo, err := m.lockManager.GetLockInfo()
	if err != nil {
		return false, fmt.Errorf("failed to read lock info: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"start_time":   lockInfo.StartTime,
		"pid":          lockInfo.PID,
		"from_version": lockInfo.FromVersion,
		"backup_path":  lockInfo.BackupPath,
		"current_step": lockInfo.CurrentStep,
	}).Warn("detected incomplete migration, attempting recovery")

	if m.config.Schema.Category == CategoryCritical && lockInfo.BackupPath != "" {
		if err := m.backupManager.RestoreBackup(lockInfo.BackupPath); err != nil {
			return true, fmt.Errorf("recovery failed: %w", err)
		}
		m.logger.Info("database recovered from backup")
	}

	m.lockManager.Release()
	return true, nil
}

// GetVersion 获取当前数据库版本
func (m *Migrator) GetVersion() (uint, bool, error) {
	db, closeDB, err := m.openDB()
	if err != nil {
		return 0, false, err
	}
	defer closeDB()

	mig, err := m.newMigrate(db)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := mig.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}
