// Package sentry 封装 Sentry 错误上报，并提供带 panic 恢复的 goroutine 启动方法
package sentry

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	initialized bool
	initMu      sync.RWMutex
)

// 设备凭据、会话与令牌相关的关键字
var sensitiveKeywords = []string{
	"password", "passcode", "passwd", "secret", "token", "auth", "credential",
	"breezesession", "jsessionid", "cookie", "pin",
}

var sensitiveURLPattern = regexp.MustCompile(`(?i)([?&](?:session|password|token|access_token|login))=[^&]*`)

var sensitiveKVPattern = regexp.MustCompile(`(?i)(` + strings.Join(sensitiveKeywords, "|") + `)(\s*[=:]\s*)[^\s,;&}"\[\]]+`)

// Init 初始化 Sentry SDK，dsn 为空时不启用
func Init(dsn, environment, release, serverName string) error {
	if dsn == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		ServerName:       serverName,
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

func IsInitialized() bool {
	initMu.RLock()
	defer initMu.RUnlock()
	return initialized
}

// Flush 程序退出前调用
func Flush(timeout time.Duration) {
	if !IsInitialized() {
		return
	}
	sentry.Flush(timeout)
}

// RecoverWithContext 用于 goroutine 的 panic 恢复，必须 defer 调用
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
		hub.RecoverWithContext(ctx, err)
	}
}

// Recover 无 context 版本
func Recover() {
	err := recover()
	if err == nil {
		return
	}
	if IsInitialized() {
		sentry.CurrentHub().Recover(err)
	}
}

// CaptureException 上报错误，tags 用于标记连接器名称、厂商等
func CaptureException(err error, tags map[string]string) {
	if !IsInitialized() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

func CaptureMessage(msg string) {
	if !IsInitialized() {
		return
	}
	sentry.CaptureMessage(msg)
}

// Go 启动带 panic 恢复的 goroutine
func Go(f func()) {
	go func() {
		defer Recover()
		f()
	}()
}

// GoWithContext 启动带 panic 恢复的 goroutine，f 接收传入的 ctx
func GoWithContext(ctx context.Context, f func(context.Context)) {
	go func() {
		defer RecoverWithContext(ctx)
		f(ctx)
	}()
}

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
	for key, ctxData := range event.Contexts {
		event.Contexts[key] = sanitizeMap(ctxData)
	}
	for key, value := range event.Tags {
		event.Tags[key] = sanitizeString(value)
	}
	if event.Request != nil {
		event.Request.URL = sanitizeString(event.Request.URL)
		event.Request.QueryString = sanitizeString(event.Request.QueryString)
		event.Request.Cookies = ""
		for header := range event.Request.Headers {
			if isSensitiveKey(header) || strings.EqualFold(header, "authorization") {
				event.Request.Headers[header] = "[REDACTED]"
			}
		}
	}
	return event
}

// sanitizeString 清理字符串中的凭据
func sanitizeString(s string) string {
	if s == "" {
		return s
	}
	s = sensitiveURLPattern.ReplaceAllString(s, "$1=[REDACTED]")
	return sensitiveKVPattern.ReplaceAllString(s, "$1$2[REDACTED]")
}

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

func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(keyLower, keyword) {
			return true
		}
	}
	return false
}
