package logger

import (
	"go.uber.org/zap/zapcore"
)

// Sink receives the subset of log entries that should be persisted.
type Sink interface {
	AddLog(entry LogEntry)
}

// DBCore wraps a base core and forwards entries at or above minLevel to a Sink.
type DBCore struct {
	zapcore.Core
	sink     Sink
	minLevel zapcore.Level
	fields   []zapcore.Field
}

// NewDBCore wraps an existing core (like console logger) and adds DB logging
func NewDBCore(baseCore zapcore.Core, sink Sink, minLevel zapcore.Level) zapcore.Core {
	return &DBCore{
		Core:     baseCore,
		sink:     sink,
		minLevel: minLevel,
	}
}

// With keeps fields attached via logger.With visible to Write.
func (c *DBCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &DBCore{
		Core:     c.Core.With(fields),
		sink:     c.sink,
		minLevel: c.minLevel,
		fields:   merged,
	}
}

// Write is called for every log entry
func (c *DBCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Level >= c.minLevel {
		le := LogEntry{
			Level:   entry.Level,
			Message: entry.Message,
			Caller:  entry.Caller.Function,
		}
		for _, group := range [][]zapcore.Field{c.fields, fields} {
			for _, f := range group {
				switch f.Key {
				case "organization_id":
					le.OrganizationID = f.String
				case "execution_id":
					le.ExecutionID = f.String
				}
			}
		}
		c.sink.AddLog(le)
	}

	return c.Core.Write(entry, fields)
}

// Check decides if we should log this level
func (c *DBCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
