package logging

// Log levels in increasing severity
const (
	LogLevelDebug = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// LevelName returns the configuration spelling of level
func LevelName(level int) string {
	switch level {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is the logging collaborator handed to every component explicitly.
// Nothing in this module configures or reads a process-wide logger.
type Logger interface {
	LogLevelf(level int, format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type LogLevelFunc func(level int, format string, args ...interface{})
type LogFunc func(format string, args ...interface{})

// LogFuncs routes messages to a backend. LogLevelf receives every level
// when set; otherwise the per-level function is used and a nil one drops
// the message.
type LogFuncs struct {
	LogLevelf LogLevelFunc
	Debugf    LogFunc
	Infof     LogFunc
	Warnf     LogFunc
	Errorf    LogFunc
}

func (f LogFuncs) emit(level int, format string, args []interface{}) {
	if f.LogLevelf != nil {
		f.LogLevelf(level, format, args...)
		return
	}

	var fn LogFunc
	switch level {
	case LogLevelDebug:
		fn = f.Debugf
	case LogLevelInfo:
		fn = f.Infof
	case LogLevelWarn:
		fn = f.Warnf
	case LogLevelError:
		fn = f.Errorf
	}
	if fn != nil {
		fn(format, args...)
	}
}

type prefixedLogger struct {
	prefix string
	funcs  LogFuncs
}

// NewLogger builds a Logger that prepends prefix to every format string
func NewLogger(prefix string, funcs LogFuncs) Logger {
	return &prefixedLogger{prefix: prefix, funcs: funcs}
}

// WithPrefix wraps base so that every message carries prefix
func WithPrefix(base Logger, prefix string) Logger {
	if base == nil {
		base = NewNopLogger()
	}
	return NewLogger(prefix, LogFuncs{LogLevelf: base.LogLevelf})
}

func (l *prefixedLogger) LogLevelf(level int, format string, args ...interface{}) {
	l.funcs.emit(level, l.prefix+format, args)
}

func (l *prefixedLogger) Debugf(format string, args ...interface{}) {
	l.LogLevelf(LogLevelDebug, format, args...)
}

func (l *prefixedLogger) Infof(format string, args ...interface{}) {
	l.LogLevelf(LogLevelInfo, format, args...)
}

func (l *prefixedLogger) Warnf(format string, args ...interface{}) {
	l.LogLevelf(LogLevelWarn, format, args...)
}

func (l *prefixedLogger) Errorf(format string, args ...interface{}) {
	l.LogLevelf(LogLevelError, format, args...)
}

type nopLogger struct{}

// NewNopLogger discards everything
func NewNopLogger() Logger {
	return nopLogger{}
}

func (nopLogger) LogLevelf(int, string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{})         {}
func (nopLogger) Infof(string, ...interface{})          {}
func (nopLogger) Warnf(string, ...interface{})          {}
func (nopLogger) Errorf(string, ...interface{})         {}
