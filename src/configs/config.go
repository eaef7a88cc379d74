package configs

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// 环境变量覆盖项，CLI 启动时先由 godotenv 加载 .env
const (
	EnvDebug       = "DATACHANGE_DEBUG"
	EnvAppDataPath = "DATACHANGE_APP_DATA_PATH"
	EnvDatabase    = "DATACHANGE_DB"
	EnvBatchSize   = "DATACHANGE_BATCH_SIZE"
	EnvSentryDSN   = "DATACHANGE_SENTRY_DSN"
	EnvMetricsBind = "DATACHANGE_METRICS_BIND"
)

// Database 需要执行迁移和数据变更的数据库文件
type Database struct {
	Path string `yaml:"path" json:"path"`
	// Type 对应已注册的 schema 类型，例如 livestate
	Type        string `yaml:"type" json:"type"`
	ForceBackup bool   `yaml:"force_backup" json:"force_backup"`
}

// MassUpdate 批量更新的全局参数
type MassUpdate struct {
	BatchSize        int           `yaml:"batch_size" json:"batch_size"`
	ProgressInterval time.Duration `yaml:"progress_interval" json:"progress_interval"`
}

var defaultMassUpdate = MassUpdate{
	BatchSize:        250,
	ProgressInterval: time.Minute,
}

type Log struct {
	OutPutFolder string `yaml:"out_put_folder" json:"out_put_folder"`
	SaveLastLog  bool   `yaml:"save_last_log" json:"save_last_log"`
	SaveEveryLog bool   `yaml:"save_every_log" json:"save_every_log"`
	// RotateDays 指定按"天"为单位滚动日志时，最多保留的天数（<=0 表示不清理）
	RotateDays int `yaml:"rotate_days" json:"rotate_days"`
}

type Sentry struct {
	DSN         string `yaml:"dsn" json:"dsn"`
	Environment string `yaml:"environment" json:"environment"`
}

// Metrics prometheus 指标服务
type Metrics struct {
	Enable bool   `yaml:"enable" json:"enable"`
	Bind   string `yaml:"bind" json:"bind"`
}

var defaultMetrics = Metrics{
	Enable: false,
	Bind:   "127.0.0.1:9464",
}

func (m *Metrics) verify() error {
	if m == nil || !m.Enable {
		return nil
	}
	if _, err := net.ResolveTCPAddr("tcp", m.Bind); err != nil {
		return fmt.Errorf("无效的指标服务绑定地址: %w", err)
	}
	return nil
}

// Config content all config info.
type Config struct {
	File  string `yaml:"-" json:"-"`
	Debug bool   `yaml:"debug" json:"debug"`

	AppDataPath string     `yaml:"app_data_path" json:"app_data_path"`
	Databases   []Database `yaml:"databases" json:"databases"`
	MassUpdate  MassUpdate `yaml:"mass_update" json:"mass_update"`
	Log         Log        `yaml:"log" json:"log"`
	Sentry      Sentry     `yaml:"sentry" json:"sentry"`
	Metrics     Metrics    `yaml:"metrics" json:"metrics"`
}

// 使用 atomic.Value 存放当前配置指针，避免并发读写造成 data race
var config atomic.Value // stores *Config

// 单独的 Debug 原子标志，便于日志模块高频读取
var currentDebug atomic.Bool

func SetCurrentConfig(cfg *Config) {
	if cfg == nil {
		config.Store((*Config)(nil))
		currentDebug.Store(false)
		return
	}
	config.Store(cfg)
	currentDebug.Store(cfg.Debug)
}

func GetCurrentConfig() *Config {
	v := config.Load()
	if v == nil {
		return nil
	}
	return v.(*Config)
}

// IsDebug 提供并发安全、低开销的 Debug 值读取
func IsDebug() bool {
	return currentDebug.Load()
}

var defaultConfig = Config{
	Debug:       false,
	AppDataPath: "",
	Databases:   []Database{},
	MassUpdate:  defaultMassUpdate,
	Log: Log{
		OutPutFolder: "./",
		SaveLastLog:  true,
		SaveEveryLog: false,
		RotateDays:   7,
	},
	Sentry: Sentry{
		Environment: "production",
	},
	Metrics: defaultMetrics,
}

func NewConfig() *Config {
	config := defaultConfig
	config.Databases = []Database{}
	newConfigPostProcess(&config)
	return &config
}

func newConfigPostProcess(c *Config) {
	if c.AppDataPath == "" {
		return
	}
	for i := range c.Databases {
		if c.Databases[i].Path != "" && !filepath.IsAbs(c.Databases[i].Path) {
			c.Databases[i].Path = filepath.Join(c.AppDataPath, c.Databases[i].Path)
		}
	}
}

// Verify will return an error when this config has problem.
func (c *Config) Verify() error {
	if c == nil {
		return fmt.Errorf("配置不存在")
	}
	if len(c.Databases) == 0 {
		return fmt.Errorf("未配置数据库，程序无任务可执行")
	}
	seen := make(map[string]struct{}, len(c.Databases))
	for i, db := range c.Databases {
		if strings.TrimSpace(db.Path) == "" {
			return fmt.Errorf("第 %d 个数据库未设置路径", i+1)
		}
		if strings.TrimSpace(db.Type) == "" {
			return fmt.Errorf(`数据库 "%s" 未设置类型`, db.Path)
		}
		if _, ok := seen[db.Path]; ok {
			return fmt.Errorf(`数据库 "%s" 重复配置`, db.Path)
		}
		seen[db.Path] = struct{}{}
	}
	if c.MassUpdate.BatchSize < 0 {
		return fmt.Errorf("批大小不能为负数")
	}
	if iv := c.MassUpdate.ProgressInterval; iv > 0 && iv < time.Second {
		return fmt.Errorf("进度日志间隔最小值为 1 秒")
	}
	if err := c.Metrics.verify(); err != nil {
		return err
	}
	return nil
}

// ApplyEnv 用环境变量覆盖配置文件中的值
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvDebug); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebug, err)
		}
		c.Debug = b
	}
	if v := os.Getenv(EnvAppDataPath); v != "" {
		c.AppDataPath = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		// 形如 path 或 path:type
		path, typ, _ := strings.Cut(v, ":")
		if typ == "" {
			typ = "livestate"
		}
		c.Databases = []Database{{Path: path, Type: typ}}
	}
	if v := os.Getenv(EnvBatchSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBatchSize, err)
		}
		c.MassUpdate.BatchSize = n
	}
	if v := os.Getenv(EnvSentryDSN); v != "" {
		c.Sentry.DSN = v
	}
	if v := os.Getenv(EnvMetricsBind); v != "" {
		c.Metrics.Enable = true
		c.Metrics.Bind = v
	}
	return nil
}

func NewConfigWithBytes(b []byte) (*Config, error) {
	config := defaultConfig
	if err := yaml.Unmarshal(b, &config); err != nil {
		return nil, err
	}
	if config.Databases == nil {
		config.Databases = []Database{}
	}
	newConfigPostProcess(&config)
	return &config, nil
}

func NewConfigWithFile(file string) (*Config, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("can`t open file: %s: %w", file, err)
	}
	config, err := NewConfigWithBytes(b)
	if err != nil {
		return nil, err
	}
	config.File = file
	return config, nil
}

// Marshal 写回配置文件，并附带自动生成的注释
func (c *Config) Marshal() error {
	if c.File == "" {
		return errors.New("config path not set")
	}

	var node yaml.Node
	tempBytes, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(tempBytes, &node); err != nil {
		return err
	}
	DecorateConfigNode(&node)

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return err
	}
	return os.WriteFile(c.File, buf.Bytes(), 0644)
}
