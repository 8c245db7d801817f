package zap

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/yola1107/blackjack/library/log/zap/conf"
)

const timeFormat = "2006/01/02 15:04:05.000"

type levelStyle struct {
	name  string
	color string
}

var styles = map[zapcore.Level]levelStyle{
	zapcore.DebugLevel:  {"DEBUG", "\x1b[36m"},
	zapcore.InfoLevel:   {"INFO·", "\x1b[32m"},
	zapcore.WarnLevel:   {"WARN·", "\x1b[33m"},
	zapcore.ErrorLevel:  {"ERROR", "\x1b[31m"},
	zapcore.DPanicLevel: {"PANIC", "\x1b[35m"},
	zapcore.PanicLevel:  {"PANIC", "\x1b[35m"},
	zapcore.FatalLevel:  {"FATAL", "\x1b[35m"},
}

// buildCore tees a colored stderr core with, in prod mode, rotating file
// cores. Bursts above 2000 identical lines per second are sampled.
func buildCore(c *conf.Logger, level zap.AtomicLevel) (zapcore.Core, []io.Closer) {
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig(false)), zapcore.Lock(os.Stderr), level),
	}
	var closers []io.Closer
	if c.Mode == conf.ModeProd && c.Directory != "" {
		app := c.AppName
		if app == "" {
			app = "app"
		}
		rotate := c.Rotate
		if rotate == nil {
			rotate = conf.DefaultConfig().Rotate
		}
		add := func(filename string, enab zapcore.LevelEnabler) {
			w := &lumberjack.Logger{
				Filename:   filepath.Join(c.Directory, filename),
				MaxSize:    int(rotate.MaxSizeMB),
				MaxBackups: int(rotate.MaxBackups),
				MaxAge:     int(rotate.MaxAgeDays),
				Compress:   rotate.Compress,
				LocalTime:  rotate.LocalTime,
			}
			closers = append(closers, w)
			enc := zapcore.NewConsoleEncoder(encoderConfig(true))
			if c.FormatJson {
				enc = zapcore.NewJSONEncoder(encoderConfig(true))
			}
			cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(w), enab))
		}
		add(app+".log", level)
		if c.ErrorFile {
			add(app+"_error.log", zap.ErrorLevel)
		}
	}
	return zapcore.NewSamplerWithOptions(zapcore.NewTee(cores...), time.Second, 2000, 10), closers
}

func encoderConfig(file bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.ConsoleSeparator = " "
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + t.Format(timeFormat) + "]")
	}
	if file {
		cfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + styles[l].name + "]")
		}
		cfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(fmt.Sprintf("[%s]", c.FullPath()))
		}
		return cfg
	}
	cfg.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		s := styles[l]
		enc.AppendString("[" + s.color + s.name + "\x1b[0m]")
	}
	cfg.EncodeCaller = zapcore.FullCallerEncoder
	return cfg
}
