// Package transport 提供设备通信所需的底层客户端：XML-RPC、SOAP、Cookie 会话、REST 与 SSH 命令行
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/shongo-go/connector/src/consts"
)

// ErrRetriesExhausted 连接重置重试次数用尽
var ErrRetriesExhausted = errors.New("connection reset retries exhausted")

// RetryPolicy 仅针对连接重置的重试策略
type RetryPolicy struct {
	// Attempts 总尝试次数（含首次），<=0 时使用默认值
	Attempts int
	// OnRetry 在每次重试前调用
	OnRetry func(attempt int, err error)
}

func (p RetryPolicy) attempts() int {
	if p.Attempts <= 0 {
		return consts.DefaultRetryAttempts
	}
	return p.Attempts
}

// IsConnectionReset 判断错误是否为连接被对端重置
func IsConnectionReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection reset")
}

// Do 执行 fn，只有连接重置才会重试，其余错误立即返回
func Do[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsConnectionReset(err) {
			return zero, err
		}
		lastErr = err
		if attempt < attempts && policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

// ReloginOnce 执行 call，若错误表示会话失效则重新登录并只重试一次
func ReloginOnce[T any](ctx context.Context, call func(ctx context.Context) (T, error), expired func(error) bool, relogin func(ctx context.Context) error) (T, error) {
	result, err := call(ctx)
	if err == nil || !expired(err) {
		return result, err
	}
	if lerr := relogin(ctx); lerr != nil {
		var zero T
		return zero, fmt.Errorf("relogin failed: %w", lerr)
	}
	return call(ctx)
}
