package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bililive-go/datachange/src/configs"
	bilisentry "github.com/bililive-go/datachange/src/pkg/sentry"
)

const (
	logFileBase = "datachange"
	dayLayout   = "2006-01-02"
)

var (
	stopDebugWatcher context.CancelFunc
	watcherMu        sync.Mutex
)

// New 按配置初始化全局 logrus Logger，cfg 为 nil 时只输出到 stderr
func New(ctx context.Context, cfg *configs.Config) (*logrus.Logger, error) {
	if cfg == nil {
		cfg = configs.NewConfig()
	}
	logLevel := logrus.InfoLevel
	if cfg.Debug {
		logLevel = logrus.DebugLevel
	}
	writers := []io.Writer{os.Stderr}
	if cfg.Log.SaveEveryLog || cfg.Log.SaveLastLog {
		outputFolder := cfg.Log.OutPutFolder
		if err := os.MkdirAll(outputFolder, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log output folder %s: %w", outputFolder, err)
		}
		if cfg.Log.SaveEveryLog {
			runID := time.Now().Format("run-2006-01-02-15-04-05")
			logLocation := filepath.Join(outputFolder, runID+".log")
			logFile, err := os.OpenFile(logLocation, os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return nil, fmt.Errorf("failed to open log file %s for output: %w", logLocation, err)
			}
			writers = append(writers, logFile)
		}
		if cfg.Log.SaveLastLog {
			// 按天滚动写入日志，超过保留天数的文件在切换时清理
			rot := newDailyRotatingWriter(outputFolder, logFileBase, cfg.Log.RotateDays)
			writers = append(writers, rot)
		}
	}

	logrus.SetOutput(io.MultiWriter(writers...))
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logrus.SetReportCaller(cfg.Debug)
	logrus.SetLevel(logLevel)

	// 动态监听 Debug 变化，实时调整日志级别与是否打印调用方
	watcherMu.Lock()
	if stopDebugWatcher != nil {
		stopDebugWatcher()
	}
	watcherCtx, cancel := context.WithCancel(ctx)
	stopDebugWatcher = cancel
	watcherMu.Unlock()

	prev := cfg.Debug
	bilisentry.GoWithContext(watcherCtx, func(ctx context.Context) {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := configs.IsDebug()
				if now == prev {
					continue
				}
				if now {
					logrus.SetLevel(logrus.DebugLevel)
					logrus.SetReportCaller(true)
				} else {
					logrus.SetLevel(logrus.InfoLevel)
					logrus.SetReportCaller(false)
				}
				prev = now
			}
		}
	})

	return logrus.StandardLogger(), nil
}

// dailyRotatingWriter 按天切分日志文件，文件名形如 <base>-YYYY-MM-DD.log
// retentionDays<=0 时不清理旧文件
type dailyRotatingWriter struct {
	dir           string
	base          string
	retentionDays int

	mu     sync.Mutex
	curDay string
	file   *os.File
}

func newDailyRotatingWriter(dir, base string, retentionDays int) *dailyRotatingWriter {
	w := &dailyRotatingWriter{dir: dir, base: base, retentionDays: retentionDays}
	_ = w.rotateLocked(time.Now())
	return w
}

func (w *dailyRotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateLocked(time.Now()); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

// Close 关闭当前日志文件，之后的 Write 会重新打开
func (w *dailyRotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.curDay = ""
	return err
}

func (w *dailyRotatingWriter) rotateLocked(now time.Time) error {
	day := now.Format(dayLayout)
	if w.file != nil && day == w.curDay {
		return nil
	}
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	f, err := os.OpenFile(w.filenameForDay(day), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.curDay = day
	w.cleanupLocked(now)
	return nil
}

func (w *dailyRotatingWriter) filenameForDay(day string) string {
	return filepath.Join(w.dir, w.base+"-"+day+".log")
}

func (w *dailyRotatingWriter) cleanupLocked(now time.Time) {
	if w.retentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -w.retentionDays)
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		rest, ok := strings.CutPrefix(entry.Name(), w.base+"-")
		if !ok {
			continue
		}
		day, ok := strings.CutSuffix(rest, ".log")
		if !ok {
			continue
		}
		if t, err := time.Parse(dayLayout, day); err == nil && t.Before(cutoff) {
			_ = os.Remove(filepath.Join(w.dir, entry.Name()))
		}
	}
}

// GetLogger 返回全局唯一的 logrus Logger。
func GetLogger() *logrus.Logger {
	return logrus.StandardLogger()
}

// WithFields 是对全局 Logger 的便捷封装，返回带字段的 Entry。
func WithFields(fields logrus.Fields) *logrus.Entry {
	return logrus.StandardLogger().WithFields(fields)
}
