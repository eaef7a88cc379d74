// Package sentry 提供 Sentry 错误监控的封装
// 用于上报失败的数据变更步骤和 goroutine 中的 panic，上报前清理可能包含用户数据的内容
package sentry

import (
	"context"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	// initialized 标记 Sentry 是否已初始化
	initialized bool
	// initMu 保护初始化状态
	initMu sync.RWMutex
)

// 敏感关键字列表
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "key", "auth", "credential", "dsn",
}

var (
	// 键值对形式的敏感数据，例如 password=xxx
	sensitivePairPattern = regexp.MustCompile(`(?i)(` + strings.Join(sensitiveKeywords, "|") + `)\s*[=:]\s*[^\s,;&}"\]]+`)
	// SQL 字符串字面量可能包含业务数据（主播名、直播间标题等）
	sqlLiteralPattern = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// Init 初始化 Sentry SDK
// dsn 为空时不初始化，所有上报函数变为空操作
func Init(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
		BeforeSend:       beforeSendHook,
		SampleRate:       1.0,
	})
	if err != nil {
		return err
	}

	initMu.Lock()
	initialized = true
	initMu.Unlock()
	return nil
}

// IsInitialized 返回 Sentry 是否已初始化
func IsInitialized() bool {
	initMu.RLock()
	defer initMu.RUnlock()
	return initialized
}

// Flush 刷新所有待发送事件（程序退出前调用）
func Flush(timeout time.Duration) {
	if !IsInitialized() {
		return
	}
	sentry.Flush(timeout)
}

// Recover 用于 goroutine 的 panic 恢复，必须以 defer 方式调用
func Recover() {
	err := recover()
	if err == nil {
		return
	}
	if IsInitialized() {
		if hub := sentry.CurrentHub(); hub != nil {
			hub.Recover(err)
		}
	}
}

// RecoverWithContext 同 Recover，优先使用 ctx 中的 hub
func RecoverWithContext(ctx context.Context) {
	err := recover()
	if err == nil {
		return
	}
	if IsInitialized() {
		hub := sentry.GetHubFromContext(ctx)
		if hub == nil {
			hub = sentry.CurrentHub()
		}
		if hub != nil {
			hub.RecoverWithContext(ctx, err)
		}
	}
}

// Go 启动一个新的 goroutine 并自动添加 panic 恢复
func Go(f func()) {
	go func() {
		defer Recover()
		f()
	}()
}

// GoWithContext 启动一个新的 goroutine 并自动添加 panic 恢复（带 Context）
func GoWithContext(ctx context.Context, f func(context.Context)) {
	go func() {
		defer RecoverWithContext(ctx)
		f(ctx)
	}()
}

// CaptureException 捕获异常
func CaptureException(err error) {
	if !IsInitialized() || err == nil {
		return
	}
	sentry.CaptureException(err)
}

// CaptureStepFailure 上报失败的数据变更步骤，tags 用于检索（数据库类型、步骤名），extra 记录进度
func CaptureStepFailure(err error, tags map[string]string, extra map[string]interface{}) {
	if !IsInitialized() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetExtras(extra)
		sentry.CaptureException(err)
	})
}

// beforeSendHook 在发送事件前清理敏感数据
func beforeSendHook(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	event.Message = sanitizeString(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = sanitizeString(event.Exception[i].Value)
		if st := event.Exception[i].Stacktrace; st != nil {
			for j := range st.Frames {
				st.Frames[j].Vars = sanitizeMap(st.Frames[j].Vars)
			}
		}
	}
	event.Extra = sanitizeMap(event.Extra)
	for key, value := range event.Tags {
		if isSensitiveKey(key) {
			event.Tags[key] = "[REDACTED]"
		} else {
			event.Tags[key] = sanitizeString(value)
		}
	}
	// 服务器名通常是用户的主机名
	event.ServerName = ""
	return event
}

// sanitizeString 清理字符串中的敏感数据
func sanitizeString(s string) string {
	if s == "" {
		return s
	}
	s = sensitivePairPattern.ReplaceAllString(s, "$1=[REDACTED]")
	s = sqlLiteralPattern.ReplaceAllString(s, "'[REDACTED]'")
	if home, err := os.UserHomeDir(); err == nil && home != "" && home != "/" {
		s = strings.ReplaceAll(s, home, "~")
	}
	return s
}

// sanitizeMap 清理 map 中的敏感数据
func sanitizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	result := make(map[string]interface{}, len(m))
	for key, value := range m {
		switch v := value.(type) {
		case string:
			if isSensitiveKey(key) {
				result[key] = "[REDACTED]"
			} else {
				result[key] = sanitizeString(v)
			}
		case map[string]interface{}:
			result[key] = sanitizeMap(v)
		default:
			if isSensitiveKey(key) {
				result[key] = "[REDACTED]"
			} else {
				result[key] = value
			}
		}
	}
	return result
}

// isSensitiveKey 检查键名是否为敏感键
func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(keyLower, keyword) {
			return true
		}
	}
	return false
}
