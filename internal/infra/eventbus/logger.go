package eventbus

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-kratos/kratos/v2/log"
)

// LoggerAdapter routes Watermill logs into the kratos logger. Watermill
// trace logs are dropped; they fire for every message.
type LoggerAdapter struct {
	logger log.Logger
	fields watermill.LogFields
}

// NewLoggerAdapter wraps logger for use by Watermill publishers and subscribers.
func NewLoggerAdapter(logger log.Logger) watermill.LoggerAdapter {
	return &LoggerAdapter{
		logger: log.With(logger, "module", "eventbus"),
	}
}

func (l *LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.log(log.LevelError, msg, err, fields)
}

func (l *LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.log(log.LevelInfo, msg, nil, fields)
}

func (l *LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.log(log.LevelDebug, msg, nil, fields)
}

func (l *LoggerAdapter) Trace(string, watermill.LogFields) {}

func (l *LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{
		logger: l.logger,
		fields: l.fields.Add(fields),
	}
}

func (l *LoggerAdapter) log(level log.Level, msg string, err error, fields watermill.LogFields) {
	keyvals := make([]any, 0, 2+2*(len(l.fields)+len(fields))+2)
	keyvals = append(keyvals, log.DefaultMessageKey, msg)
	for k, v := range l.fields.Add(fields) {
		keyvals = append(keyvals, k, v)
	}
	if err != nil {
		keyvals = append(keyvals, "error", err)
	}
	_ = l.logger.Log(level, keyvals...)
}
