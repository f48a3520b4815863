// Package log 配置全局 logrus 日志：输出位置、级别，以及按连接器拆分的日志文件
package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/consts"
	"github.com/shongo-go/connector/src/interfaces"
	"github.com/shongo-go/connector/src/pkg/sentry"
)

// 连接器日志携带的字段
const (
	FieldConnector = "connector"
	FieldAgent     = "agent"
	FieldDevice    = "device"
)

const (
	connectorsDir = "connectors"
	watchInterval = 500 * time.Millisecond
)

var (
	mu             sync.Mutex
	stopWatch      context.CancelFunc
	connectorFiles *connectorFileHook
)

// New 按当前配置设置标准 logger，并在配置的 debug 变化时调整级别
func New(ctx context.Context) *interfaces.Logger {
	cfg := configs.GetCurrentConfig()
	if cfg == nil {
		cfg = configs.NewConfig()
	}
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	writers, err := outputs(cfg.Log, time.Now())
	logger.SetOutput(io.MultiWriter(writers...))
	if err != nil {
		logger.WithError(err).Warn("failed to open log files")
	}
	applyDebug(logger, cfg.Debug)

	mu.Lock()
	defer mu.Unlock()
	if cfg.Log.PerConnector {
		dir := filepath.Join(cfg.Log.Folder, connectorsDir)
		if connectorFiles == nil {
			connectorFiles = newConnectorFileHook(dir)
			logger.AddHook(connectorFiles)
		} else {
			connectorFiles.setDir(dir)
		}
	} else if connectorFiles != nil {
		connectorFiles.setDir("")
	}

	if stopWatch != nil {
		stopWatch()
	}
	var watchCtx context.Context
	watchCtx, stopWatch = context.WithCancel(ctx)
	debug := cfg.Debug
	sentry.GoWithContext(watchCtx, func(ctx context.Context) {
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if now := configs.IsDebug(); now != debug {
					debug = now
					applyDebug(logger, debug)
					logger.WithField("debug", debug).Info("log level changed")
				}
			}
		}
	})

	return &interfaces.Logger{Logger: logger}
}

func applyDebug(logger *logrus.Logger, debug bool) {
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	logger.SetReportCaller(debug)
}

// outputs 总是包含 stderr，打不开的日志文件跳过并在 error 中返回
func outputs(cfg configs.Log, start time.Time) ([]io.Writer, error) {
	writers := []io.Writer{os.Stderr}
	if !cfg.Daily && !cfg.PerRun {
		return writers, nil
	}
	if err := os.MkdirAll(cfg.Folder, 0o755); err != nil {
		return writers, fmt.Errorf("log folder %s: %w", cfg.Folder, err)
	}
	var errs []error
	if cfg.PerRun {
		name := filepath.Join(cfg.Folder, start.Format("run-2006-01-02-15-04-05")+".log")
		if f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644); err != nil {
			errs = append(errs, err)
		} else {
			writers = append(writers, f)
		}
	}
	if cfg.Daily {
		if d, err := openDaily(cfg.Folder, consts.AppName, cfg.RetentionDays, rotatelogs.Local); err != nil {
			errs = append(errs, err)
		} else {
			writers = append(writers, d)
		}
	}
	return writers, errors.Join(errs...)
}

// openDaily 按天写入 <dir>/<prefix>-YYYY-MM-DD.log，keep > 0 时删除超过 keep 天的旧文件
func openDaily(dir, prefix string, keep int, clock rotatelogs.Clock) (*rotatelogs.RotateLogs, error) {
	opts := []rotatelogs.Option{
		rotatelogs.WithClock(clock),
		rotatelogs.WithRotationTime(24 * time.Hour),
	}
	if keep > 0 {
		opts = append(opts, rotatelogs.WithMaxAge(time.Duration(keep)*24*time.Hour))
	} else {
		opts = append(opts, rotatelogs.WithRotationCount(math.MaxUint32))
	}
	return rotatelogs.New(filepath.Join(dir, prefix+"-%Y-%m-%d.log"), opts...)
}

// connectorFileHook 把带 connector 字段的日志另写到 <dir>/<connector>.log
type connectorFileHook struct {
	mu    sync.Mutex
	dir   string
	files map[string]*os.File
}

func newConnectorFileHook(dir string) *connectorFileHook {
	return &connectorFileHook{dir: dir, files: make(map[string]*os.File)}
}

func (h *connectorFileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *connectorFileHook) Fire(entry *logrus.Entry) error {
	name, _ := entry.Data[FieldConnector].(string)
	if name == "" {
		return nil
	}
	line, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dir == "" {
		return nil
	}
	f, ok := h.files[name]
	if !ok {
		if err := os.MkdirAll(h.dir, 0o755); err != nil {
			return err
		}
		f, err = os.OpenFile(filepath.Join(h.dir, fileName(name)+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		h.files[name] = f
	}
	_, err = f.Write(line)
	return err
}

// setDir 切换目录并关闭已打开的文件，空目录表示停用
func (h *connectorFileHook) setDir(dir string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, f := range h.files {
		_ = f.Close()
		delete(h.files, name)
	}
	h.dir = dir
}

// fileName 连接器名称中除字母、数字、点、横线和下划线外的字符替换为下划线
func fileName(connector string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, connector)
}

func GetLogger() *logrus.Logger {
	return logrus.StandardLogger()
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return logrus.StandardLogger().WithFields(fields)
}
