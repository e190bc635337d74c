package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/3Eeeecho/go-stackdash/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName 写入每条日志的 service 字段
const ServiceName = "go-stackdash"

var (
	log  *zap.Logger
	once sync.Once
)

// New 按 log 配置构建 logger，文件路径所在目录不存在时自动创建
// stdout/stderr 这类 zap 的特殊路径原样使用
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level := zap.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log.level %q: %w", cfg.Level, err)
		}
	}

	outputs := []string{"stdout"}
	errOutputs := []string{"stderr"}
	for _, p := range []string{cfg.OutputPath, cfg.ErrorPath} {
		if p == "" || p == "stdout" || p == "stderr" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir for %s: %w", p, err)
		}
	}
	if cfg.OutputPath != "" && cfg.OutputPath != "stdout" {
		outputs = append(outputs, cfg.OutputPath)
	}
	if cfg.ErrorPath != "" && cfg.ErrorPath != "stderr" {
		errOutputs = append(errOutputs, cfg.ErrorPath)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = outputs
	zc.ErrorOutputPaths = errOutputs
	zc.Encoding = "json"
	zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zc.InitialFields = map[string]any{"service": ServiceName}

	return zc.Build()
}

// InitLogger 用 log 配置初始化全局 logger，只生效一次
func InitLogger(cfg config.LogConfig) error {
	var err error
	once.Do(func() {
		var l *zap.Logger
		if l, err = New(cfg); err != nil {
			return
		}
		log = l
		zap.ReplaceGlobals(l)
	})
	return err
}

// SetLogger 直接替换全局 logger，测试中传入 zap.NewNop()
func SetLogger(l *zap.Logger) {
	once.Do(func() {})
	log = l
	zap.ReplaceGlobals(l)
}

func GetLogger() *zap.Logger {
	if log == nil {
		// InitLogger 之前或初始化失败时，退化为只输出到标准输出
		l, err := New(config.LogConfig{Level: "info"})
		if err != nil {
			return zap.NewNop()
		}
		SetLogger(l)
	}
	return log
}

// 刷新缓冲区,确保程序退出前使用
func Sync() {
	if log != nil {
		if err := log.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync zap logger: %v\n", err)
		}
	}
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}
