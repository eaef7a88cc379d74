// Package checkpoint 提供数据变更的持久化检查点
// 记录每个步骤的执行历史、水位线，以及最后一次操作数据库的程序版本。
// 检查点与业务数据存放在同一个数据库中，备份和恢复时保持一致。
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
)

// 预定义的命名空间常量
const (
	// NamespaceSteps 步骤执行历史
	NamespaceSteps = "steps"
	// NamespaceWatermarks 步骤的处理位置
	NamespaceWatermarks = "watermarks"
	// NamespaceApp 程序相关信息
	NamespaceApp = "app"
)

// KeyAppVersion 最后一次操作数据库的程序版本
const KeyAppVersion = "version"

// ErrNewerVersion 数据库已被更新版本的程序处理过
var ErrNewerVersion = errors.New("database was migrated by a newer version")

// Store 检查点存储
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New 在 db 中创建检查点表（如果不存在）
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS datachange_checkpoints (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at INTEGER DEFAULT (strftime('%s', 'now')),
			updated_at INTEGER DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (namespace, key)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("创建检查点表失败: %w", err)
	}
	return &Store{db: db}, nil
}

// Get 从指定命名空间获取值，键不存在时 ok 为 false
func (s *Store) Get(ctx context.Context, namespace, key string) (value string, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.QueryRowContext(ctx,
		"SELECT value FROM datachange_checkpoints WHERE namespace = ? AND key = ?",
		namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("查询失败: %w", err)
	}
	return value, true, nil
}

// Set 在指定命名空间设置值
func (s *Store) Set(ctx context.Context, namespace, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datachange_checkpoints (namespace, key, value, updated_at)
		 VALUES (?, ?, ?, strftime('%s', 'now'))
		 ON CONFLICT(namespace, key) DO UPDATE SET
		 value = excluded.value,
		 updated_at = strftime('%s', 'now')`,
		namespace, key, value,
	)
	if err != nil {
		return fmt.Errorf("保存失败: %w", err)
	}
	return nil
}

// Delete 从指定命名空间删除键
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM datachange_checkpoints WHERE namespace = ? AND key = ?",
		namespace, key,
	)
	if err != nil {
		return fmt.Errorf("删除失败: %w", err)
	}
	return nil
}

// GetAll 获取指定命名空间的所有键值对
func (s *Store) GetAll(ctx context.Context, namespace string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM datachange_checkpoints WHERE namespace = ?",
		namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("查询失败: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("读取行失败: %w", err)
		}
		result[key] = value
	}
	return result, rows.Err()
}

// DeleteNamespace 删除整个命名空间
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM datachange_checkpoints WHERE namespace = ?",
		namespace,
	)
	if err != nil {
		return fmt.Errorf("删除命名空间失败: %w", err)
	}
	return nil
}

// GetWatermark 读取步骤的处理位置
func (s *Store) GetWatermark(ctx context.Context, step string) (string, bool, error) {
	return s.Get(ctx, NamespaceWatermarks, step)
}

// SetWatermark 记录步骤的处理位置
func (s *Store) SetWatermark(ctx context.Context, step, value string) error {
	return s.Set(ctx, NamespaceWatermarks, step, value)
}

// CheckAppVersion 检查数据库是否被更新版本的程序处理过，并记录当前版本
// 无法解析为语义化版本的版本号（开发构建）不做检查也不记录。
func (s *Store) CheckAppVersion(ctx context.Context, version string) error {
	current, err := semver.NewVersion(version)
	if err != nil {
		return nil
	}
	stored, ok, err := s.Get(ctx, NamespaceApp, KeyAppVersion)
	if err != nil {
		return err
	}
	if ok {
		if previous, err := semver.NewVersion(stored); err == nil {
			if previous.GreaterThan(current) {
				return fmt.Errorf("%w: database version %s, program version %s", ErrNewerVersion, previous, current)
			}
			if previous.Equal(current) {
				return nil
			}
		}
	}
	return s.Set(ctx, NamespaceApp, KeyAppVersion, current.String())
}

// StepRecord 一次步骤执行的记录
type StepRecord struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Read       int64     `json:"read"`
	Updated    int64     `json:"updated"`
	Skipped    int64     `json:"skipped"`
	Written    int64     `json:"written"`
	Batches    int64     `json:"batches"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Runs 该步骤累计执行的次数
	Runs       int    `json:"runs"`
	AppVersion string `json:"app_version,omitempty"`
}

// RecordStep 保存步骤的最近一次执行结果，Runs 自动累加
func (s *Store) RecordStep(ctx context.Context, rec StepRecord) error {
	if rec.Name == "" {
		return errors.New("步骤名称不能为空")
	}
	previous, ok, err := s.GetStep(ctx, rec.Name)
	if err != nil {
		return err
	}
	rec.Runs = 1
	if ok {
		rec.Runs = previous.Runs + 1
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("序列化步骤记录失败: %w", err)
	}
	return s.Set(ctx, NamespaceSteps, rec.Name, string(data))
}

// GetStep 读取步骤的最近一次执行结果
func (s *Store) GetStep(ctx context.Context, name string) (StepRecord, bool, error) {
	value, ok, err := s.Get(ctx, NamespaceSteps, name)
	if err != nil || !ok {
		return StepRecord{}, false, err
	}
	var rec StepRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return StepRecord{}, false, fmt.Errorf("解析步骤记录 %s 失败: %w", name, err)
	}
	return rec, true, nil
}

// ListSteps 按开始时间返回所有步骤记录
func (s *Store) ListSteps(ctx context.Context) ([]StepRecord, error) {
	all, err := s.GetAll(ctx, NamespaceSteps)
	if err != nil {
		return nil, err
	}
	records := make([]StepRecord, 0, len(all))
	for name, value := range all {
		var rec StepRecord
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			return nil, fmt.Errorf("解析步骤记录 %s 失败: %w", name, err)
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].StartedAt.Equal(records[j].StartedAt) {
			return records[i].Name < records[j].Name
		}
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
	return records, nil
}
