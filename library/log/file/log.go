package file

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	timeFormat        = "2006/01/02 15:04:05"
	defaultMaxSize    = 10 // MB
	defaultMaxAge     = 7  // days
	defaultMaxBackups = 3
)

// Log 单个文件的日志, 每行带时间前缀, 无级别
type Log struct {
	logger *zap.Logger
	writer *lumberjack.Logger
}

// NewFileLog 创建写入 filename 的滚动日志
func NewFileLog(filename string) *Log {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeLevel = nil
	encoderCfg.EncodeCaller = nil
	encoderCfg.EncodeTime = customTimeEncoder
	encoderCfg.ConsoleSeparator = " "
	lj := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    defaultMaxSize,
		MaxAge:     defaultMaxAge,
		MaxBackups: defaultMaxBackups,
		LocalTime:  true,
		Compress:   true,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(lj), zapcore.InfoLevel)
	return &Log{
		logger: zap.New(core),
		writer: lj,
	}
}

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + t.Format(timeFormat) + "]")
}

func (l *Log) Sync() error {
	return l.logger.Sync()
}

// Close flushes and releases the underlying file.
func (l *Log) Close() error {
	_ = l.logger.Sync()
	return l.writer.Close()
}

// Infow 写入结构化日志
func (l *Log) Infow(msg string, kvs ...any) {
	l.logger.Sugar().Infow(msg, kvs...)
}

// WriteLog 写入格式化日志
func (l *Log) WriteLog(msg string, args ...any) {
	l.logger.Sugar().Infof(msg, args...)
}
