package sentry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "", sanitizeString(""))
	assert.Equal(t, "open db: password=[REDACTED] mode=rwc", sanitizeString("open db: password=hunter2 mode=rwc"))
	assert.Equal(t,
		"UNIQUE constraint failed near '[REDACTED]'",
		sanitizeString("UNIQUE constraint failed near 'someone''s room'"))
}

func TestSanitizeMap(t *testing.T) {
	got := sanitizeMap(map[string]interface{}{
		"step":      "populate_live_session_stats",
		"api_token": "abc",
		"read":      int64(10),
		"nested":    map[string]interface{}{"secret": 1},
	})
	assert.Equal(t, "populate_live_session_stats", got["step"])
	assert.Equal(t, "[REDACTED]", got["api_token"])
	assert.Equal(t, int64(10), got["read"])
	assert.Equal(t, "[REDACTED]", got["nested"].(map[string]interface{})["secret"])
	assert.Nil(t, sanitizeMap(nil))
}

func TestBeforeSendHook(t *testing.T) {
	event := &sentry.Event{
		Message:    "token: abc failed",
		ServerName: "my-laptop",
		Tags:       map[string]string{"step": "x", "auth": "y"},
		Exception:  []sentry.Exception{{Value: "insert 'private'"}},
	}
	out := beforeSendHook(event, nil)
	assert.Equal(t, "token=[REDACTED] failed", out.Message)
	assert.Empty(t, out.ServerName)
	assert.Equal(t, "[REDACTED]", out.Tags["auth"])
	assert.Equal(t, "x", out.Tags["step"])
	assert.Equal(t, "insert '[REDACTED]'", out.Exception[0].Value)
}

func TestGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})
	Go(func() {
		defer close(done)
		panic("boom")
	})
	<-done
	// 未初始化时 Capture 系列函数为空操作
	assert.False(t, IsInitialized())
	CaptureException(assert.AnError)
	CaptureStepFailure(assert.AnError, nil, nil)
}
