package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"log"
	"os"
	"strings"
	"sync"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragenboats logger.ILogger)
// --------------------------------------------------------------------------

// xkvLogger implements the ILogger interface with custom formatting
type xkvLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *xkvLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *xkvLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *xkvLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *xkvLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *xkvLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *xkvLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *xkvLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the Factory interface - note the error return value
func CreateLogger(pkgName string) logger.ILogger {
	// Create standard logger with custom flags
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)

	return &xkvLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseLogLevel converts a string level to logger.LogLevel
func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warning", "warn":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		panic(fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// installFactory guards the factory, dragonboat panics when it is set twice
var installFactory sync.Once

// InitLoggers installs the custom logger factory and sets the level of all known loggers.
// Valid levels are debug, info, warn and error. It may be called repeatedly, later calls only change the level.
func InitLoggers(level string) {
	lvl := parseLogLevel(level)

	// Set as the global logger factory for Dragonboat
	installFactory.Do(func() { logger.SetLoggerFactory(CreateLogger) })

	// Configure Dragonboat loggers
	for _, name := range []string{"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb"} {
		logger.GetLogger(name).SetLevel(lvl)
	}

	// configure custom loggers
	for _, name := range []string{"store", "batch", "transport/rpc", "rpc", "cli"} {
		logger.GetLogger(name).SetLevel(lvl)
	}
}
