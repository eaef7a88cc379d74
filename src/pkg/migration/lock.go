package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// LockFileExtension 锁文件扩展名
	LockFileExtension = ".migration.lock"
)

// LockManager 锁管理器
//
// 锁文件在迁移开始时创建、正常结束时删除；进程中途退出时留下的锁文件
// 记录了备份路径和正在执行的步骤，供下次启动时 CheckAndRecover 使用。
type LockManager struct {
	dbPath   string
	lockPath string
}

// NewLockManager 创建锁管理器
func NewLockManager(dbPath string) *LockManager {
	return &LockManager{
		dbPath:   dbPath,
		lockPath: dbPath + LockFileExtension,
	}
}

// GetLockPath 获取锁文件路径
func (m *LockManager) GetLockPath() string {
	return m.lockPath
}

// Acquire 获取锁，锁文件以 O_EXCL 创建，并发的迁移进程只有一个能成功
func (m *LockManager) Acquire(info *LockInfo) error {
	if err := os.MkdirAll(filepath.Dir(m.lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock file directory: %w", err)
	}

	f, err := os.OpenFile(m.lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		existingInfo, readErr := m.GetLockInfo()
		if readErr != nil {
			return fmt.Errorf("%w: lock file exists but cannot be read: %v", ErrLocked, readErr)
		}
		return fmt.Errorf("%w: started at %s (PID: %d)", ErrLocked, existingInfo.StartTime, existingInfo.PID)
	}
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err == nil {
		_, err = f.Write(data)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(m.lockPath)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// SetCurrentStep 在锁文件中记录正在执行的步骤
func (m *LockManager) SetCurrentStep(step string) error {
	info, err := m.GetLockInfo()
	if err != nil {
		return err
	}
	info.CurrentStep = step
	return m.write(info)
}

func (m *LockManager) write(info *LockInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock info: %w", err)
	}
	if err := os.WriteFile(m.lockPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// Release 释放锁
func (m *LockManager) Release() error {
	if !m.IsLocked() {
		return nil
	}
	if err := os.Remove(m.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// IsLocked 检查是否被锁定
func (m *LockManager) IsLocked() bool {
	_, err := os.Stat(m.lockPath)
	return err == nil
}

// GetLockInfo 获取锁信息
func (m *LockManager) GetLockInfo() (*LockInfo, error) {
	data, err := os.ReadFile(m.lockPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock info: %w", err)
	}
	return &info, nil
}

// CreateLockInfo 创建锁信息
func CreateLockInfo(dbPath, backupPath string, fromVersion uint, schemaType DatabaseType) *LockInfo {
	return &LockInfo{
		DBPath:      dbPath,
		BackupPath:  backupPath,
		StartTime:   time.Now().Format(time.RFC3339),
		FromVersion: fromVersion,
		PID:         os.Getpid(),
		SchemaType:  schemaType,
	}
}
