package logging

import (
	"fmt"
	"io"
	"os"

	"go-shortener-pipeline/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Compile-time interface check
var _ log.Logger = (*ZapLogger)(nil)

// ZapLogger adapts a zap.Logger to the Kratos log.Logger interface.
type ZapLogger struct {
	log *zap.Logger
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(zl *zap.Logger) *ZapLogger {
	return &ZapLogger{log: zl}
}

// New builds a JSON zap logger writing to stdout, or to a rotating file when
// c.File is set. The cleanup func flushes buffered entries.
func New(c *conf.Log) (*ZapLogger, func(), error) {
	level := zapcore.InfoLevel
	var out io.Writer = os.Stdout

	if c != nil {
		if c.Level != "" {
			if err := level.Set(c.Level); err != nil {
				return nil, nil, fmt.Errorf("parse log level: %w", err)
			}
		}
		if c.File != "" {
			out = &lumberjack.Logger{
				Filename:   c.File,
				MaxSize:    c.MaxSizeMB,
				MaxBackups: c.MaxBackups,
				MaxAge:     c.MaxAgeDays,
				Compress:   true,
			}
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	// Kratos supplies its own ts and caller valuers.
	encoderCfg.TimeKey = ""
	encoderCfg.CallerKey = ""

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(out),
		level,
	)
	l := NewZapLogger(zap.New(core))

	cleanup := func() {
		_ = l.Sync()
		if closer, ok := out.(io.Closer); ok && out != os.Stdout {
			_ = closer.Close()
		}
	}
	return l, cleanup, nil
}

// Log implements log.Logger.
func (l *ZapLogger) Log(level log.Level, keyvals ...any) error {
	if len(keyvals) == 0 || len(keyvals)%2 != 0 {
		l.log.Warn(fmt.Sprint("keyvals must appear in pairs: ", keyvals))
		return nil
	}

	var msg string
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if key == log.DefaultMessageKey {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		if err, ok := keyvals[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}

	switch level {
	case log.LevelDebug:
		l.log.Debug(msg, fields...)
	case log.LevelWarn:
		l.log.Warn(msg, fields...)
	case log.LevelError:
		l.log.Error(msg, fields...)
	case log.LevelFatal:
		l.log.Fatal(msg, fields...)
	default:
		l.log.Info(msg, fields...)
	}
	return nil
}

// Sync flushes buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.log.Sync()
}

// WithService decorates base with the fields every process log line carries.
func WithService(base log.Logger, id, name, version string) log.Logger {
	return log.With(base,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", name,
		"service.version", version,
	)
}
