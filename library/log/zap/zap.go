package zap

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yola1107/blackjack/library/log/zap/conf"
)

var _ log.Logger = (*Logger)(nil)

const sensitiveMask = "***"

// Logger adapts zap to the kratos logger interface. The level and the
// masked keys can be changed while the process runs.
type Logger struct {
	log     *zap.Logger
	level   zap.AtomicLevel
	closers []io.Closer
	masked  atomic.Pointer[map[string]struct{}]
}

// NewLogger builds a kratos logger backed by zap. A nil config falls back
// to conf.DefaultConfig.
func NewLogger(c *conf.Logger) (*Logger, error) {
	if c == nil {
		c = conf.DefaultConfig()
	}
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %q", c.Level)
	}
	core, closers := buildCore(c, level)
	l := &Logger{
		log:     zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.PanicLevel)),
		level:   level,
		closers: closers,
	}
	l.SetSensitive(c.Sensitive)
	l.log.Debug(fmt.Sprintf("logger ready. mode=%s app=%q level=%q dir=%q", c.Mode, c.AppName, c.Level, c.Directory))
	return l, nil
}

// 日志级别映射, kratos 与 zap 的 Fatal 数值不同
var levels = map[log.Level]zapcore.Level{
	log.LevelDebug: zapcore.DebugLevel,
	log.LevelInfo:  zapcore.InfoLevel,
	log.LevelWarn:  zapcore.WarnLevel,
	log.LevelError: zapcore.ErrorLevel,
	log.LevelFatal: zapcore.FatalLevel,
}

func (l *Logger) Log(level log.Level, keyvals ...any) error {
	lvl, ok := levels[level]
	if !ok {
		lvl = zapcore.InfoLevel
	}
	if lvl < zapcore.FatalLevel && !l.level.Enabled(lvl) {
		return nil
	}
	if len(keyvals) == 0 || len(keyvals)%2 != 0 {
		l.log.Warn(fmt.Sprint("Keyvalues must appear in pairs: ", keyvals))
		return nil
	}

	msg, fields := l.fields(keyvals)
	if ce := l.log.WithOptions(zap.AddCallerSkip(callerSkip())).Check(lvl, msg); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

// fields splits keyvals into the message and masked zap fields.
func (l *Logger) fields(keyvals []any) (string, []zap.Field) {
	masked := *l.masked.Load()
	msg := ""
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if key == log.DefaultMessageKey {
			msg, _ = keyvals[i+1].(string)
			continue
		}
		if _, hide := masked[strings.ToLower(key)]; hide {
			fields = append(fields, zap.String(key, sensitiveMask))
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	return msg, fields
}

func (l *Logger) Close() error {
	l.log.Info("logger closed")
	_ = l.log.Sync()
	for _, c := range l.closers {
		_ = c.Close()
	}
	return nil
}

func (l *Logger) GetLevel() string {
	return l.level.String()
}

func (l *Logger) SetLevel(level string) error {
	if err := l.level.UnmarshalText([]byte(level)); err != nil {
		l.log.Warn("invalid log level", zap.String("level", level), zap.Error(err))
		return err
	}
	l.log.Info("log level updated", zap.String("level", level))
	return nil
}

// SetSensitive replaces the keys whose values are masked. Keys match
// case-insensitively.
func (l *Logger) SetSensitive(keys []string) {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	l.masked.Store(&set)
}

// callerSkip 经 kratos Helper/全局函数调用时多跳过一层
func callerSkip() int {
	pc := make([]uintptr, 8)
	n := runtime.Callers(3, pc)
	frames := runtime.CallersFrames(pc[:n])
	for {
		frame, more := frames.Next()
		if strings.Contains(frame.Function, "kratos/v2/log.(*") {
			return 3
		}
		if !more {
			return 2
		}
	}
}
