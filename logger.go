package flagdeck

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Define the logrus log levels
const (
	LogLevelPanic = logrus.PanicLevel
	LogLevelFatal = logrus.FatalLevel
	LogLevelError = logrus.ErrorLevel
	LogLevelWarn  = logrus.WarnLevel
	LogLevelInfo  = logrus.InfoLevel
	LogLevelDebug = logrus.DebugLevel
	LogLevelTrace = logrus.TraceLevel
)

type LogLevel = logrus.Level

// Logger defines the interface this library logs with.
type Logger interface {
	// GetLevel returns the current logging level.
	GetLevel() LogLevel

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultLogger creates the default logger with the specified log level (logrus.New()).
func DefaultLogger(level LogLevel) Logger {
	logger := logrus.New()
	logger.SetLevel(level)
	return logger
}

// leveledLogger wraps a Logger for efficiency reasons: it's a static type
// rather than an interface so the compiler can inline the level check
// and thus avoid the allocation for the arguments.
//
// Each line is prefixed with its event id; the fixed event ids (1001,
// 2200, 2201, 3001, 3200, 4001, 5000, 5200) are relied on by log
// processing and must not change. Lines logged at error level are also
// reported to the on-error hook subscribers.
type leveledLogger struct {
	level LogLevel
	hooks *Hooks
	Logger
}

func newLeveledLogger(logger Logger, level LogLevel, hooks *Hooks) *leveledLogger {
	if logger == nil {
		logger = DefaultLogger(LogLevelWarn)
	}
	if level == 0 {
		level = logger.GetLevel()
	}
	return &leveledLogger{
		level:  level,
		hooks:  hooks,
		Logger: logger,
	}
}

func (log *leveledLogger) enabled(level LogLevel) bool {
	return level <= log.level
}

func (log *leveledLogger) Debugf(eventID int, format string, args ...interface{}) {
	if log.enabled(LogLevelDebug) {
		log.Logger.Debugf("[%d] "+format, prepend(eventID, args)...)
	}
}

func (log *leveledLogger) Infof(eventID int, format string, args ...interface{}) {
	if log.enabled(LogLevelInfo) {
		log.Logger.Infof("[%d] "+format, prepend(eventID, args)...)
	}
}

func (log *leveledLogger) Warnf(eventID int, format string, args ...interface{}) {
	if log.enabled(LogLevelWarn) {
		log.Logger.Warnf("[%d] "+format, prepend(eventID, args)...)
	}
}

func (log *leveledLogger) Errorf(eventID int, format string, args ...interface{}) {
	if log.hooks != nil {
		log.hooks.invokeOnError(log, fmt.Sprintf(format, args...))
	}
	if log.enabled(LogLevelError) {
		log.Logger.Errorf("[%d] "+format, prepend(eventID, args)...)
	}
}

func prepend(eventID int, args []interface{}) []interface{} {
	return append([]interface{}{eventID}, args...)
}
