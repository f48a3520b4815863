// Package connlogger 为每个连接器提供独立的日志记录器，并在内存中保留最近的日志
package connlogger

import (
	"bytes"
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultBufferSize 默认日志缓冲区大小（64KB）
	DefaultBufferSize = 64 * 1024
)

type loggerKey struct{}

var (
	hooksMu    sync.Mutex
	hookedBase = map[*logrus.Logger]struct{}{}
)

// Hook 根据 entry 的 context 找到所属 Logger 并写入其缓冲区
type Hook struct{}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}
	logger, ok := entry.Context.Value(loggerKey{}).(*Logger)
	if !ok || logger == nil {
		return nil
	}
	formatted, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return nil
	}
	logger.writeToBuffer(formatted)
	return nil
}

func ensureHookRegistered(base *logrus.Logger) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if _, ok := hookedBase[base]; ok {
		return
	}
	base.AddHook(&Hook{})
	hookedBase[base] = struct{}{}
}

// ringBuffer 固定大小的环形缓冲区
type ringBuffer struct {
	buf      []byte
	size     int
	writePos int
	full     bool
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		buf:  make([]byte, size),
		size: size,
	}
}

func (rb *ringBuffer) Write(p []byte) (n int, err error) {
	n = len(p)
	if n == 0 {
		return 0, nil
	}
	// 超过缓冲区大小时只保留末尾
	if n >= rb.size {
		copy(rb.buf, p[n-rb.size:])
		rb.writePos = 0
		rb.full = true
		return n, nil
	}
	remaining := rb.size - rb.writePos
	if n <= remaining {
		copy(rb.buf[rb.writePos:], p)
		rb.writePos += n
		if rb.writePos == rb.size {
			rb.writePos = 0
			rb.full = true
		}
	} else {
		copy(rb.buf[rb.writePos:], p[:remaining])
		copy(rb.buf, p[remaining:])
		rb.writePos = n - remaining
		rb.full = true
	}
	return n, nil
}

func (rb *ringBuffer) String() string {
	if !rb.full {
		return string(rb.buf[:rb.writePos])
	}
	var result bytes.Buffer
	result.Write(rb.buf[rb.writePos:])
	result.Write(rb.buf[:rb.writePos])
	return result.String()
}

// Logger 连接器专属日志记录器，嵌入 logrus.Entry
type Logger struct {
	*logrus.Entry
	mu     sync.RWMutex
	buffer *ringBuffer
	name   string
}

// New 创建连接器日志记录器，fields 中通常包含 connector、agent、device
func New(base *logrus.Logger, name string, bufferSize int, fields logrus.Fields) *Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	logger := &Logger{
		buffer: newRingBuffer(bufferSize),
		name:   name,
	}
	ctx := context.WithValue(context.Background(), loggerKey{}, logger)
	logger.Entry = base.WithContext(ctx).WithFields(fields)
	ensureHookRegistered(base)
	return logger
}

// Discard 返回不输出任何内容的记录器，用于测试
func Discard() *Logger {
	base := logrus.New()
	base.Out = &bytes.Buffer{}
	base.SetLevel(logrus.PanicLevel)
	return New(base, "", 1024, nil)
}

func (l *Logger) writeToBuffer(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer.Write(data)
}

func (l *Logger) Name() string {
	return l.name
}

// GetLogs 返回缓冲区中的日志
func (l *Logger) GetLogs() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buffer.String()
}
