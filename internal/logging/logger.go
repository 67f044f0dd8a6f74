package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger interface defines the common logging methods.
type Logger interface {
	// WithComponent adds component name to the log context.
	WithComponent(componentName string) Logger
	// WithSensor adds sensor name to the log context.
	WithSensor(sensor string) Logger
	// WithThreshold adds threshold name to the log context.
	WithThreshold(threshold string) Logger
	// WithError adds error details to the log context.
	WithError(err error) Logger
	// WithFields adds multiple fields to the log context and returns a Logger for chaining.
	WithFields(fields map[string]interface{}) Logger

	// Info logs an info-level message with optional format arguments.
	Info(msg string, args ...interface{})
	// Warn logs a warning-level message with optional format arguments.
	Warn(msg string, args ...interface{})
	// Error logs an error-level message with optional format arguments.
	Error(msg string, args ...interface{})
	// Debug logs a debug-level message with optional format arguments.
	Debug(msg string, args ...interface{})
	// Fatal logs a fatal-level message and exits.
	Fatal(msg string, args ...interface{})

	// LogStartup logs application startup information.
	LogStartup(serviceName string, version string, port int)
	// LogShutdown logs application shutdown information.
	LogShutdown(serviceName string, reason string)

	// Logger returns the underlying *zap.Logger.
	Logger() *zap.Logger
}

// StandardLogger provides a standardized logging interface backed by zap.
type StandardLogger struct {
	logger *zap.Logger
}

// NewStandardLogger creates a new standardized logger based on configuration.
//
// Parameters:
//
//	logLevel: The log level (debug, info, warn, error).
//	environment: The environment (development, production).
//
// Returns:
//
//	*StandardLogger: The initialized logger.
func NewStandardLogger(logLevel string, environment string) *StandardLogger {
	level := getZapLevel(logLevel)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var core zapcore.Core

	if environment == "development" || environment == "test" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
		core = zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level)
	} else {
		jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)
		core = zapcore.NewCore(jsonEncoder, zapcore.AddSync(os.Stdout), level)
	}

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &StandardLogger{
		logger: logger,
	}
}

func (l *StandardLogger) Logger() *zap.Logger {
	return l.logger
}

// WithComponent creates a logger with component context.
func (l *StandardLogger) WithComponent(componentName string) Logger {
	return &StandardLogger{logger: l.logger.With(zap.String("component", componentName))}
}

// WithSensor creates a logger with sensor context.
func (l *StandardLogger) WithSensor(sensor string) Logger {
	return &StandardLogger{logger: l.logger.With(zap.String("sensor", sensor))}
}

// WithThreshold creates a logger with threshold context.
func (l *StandardLogger) WithThreshold(threshold string) Logger {
	return &StandardLogger{logger: l.logger.With(zap.String("threshold", threshold))}
}

// WithError creates a logger with error context.
func (l *StandardLogger) WithError(err error) Logger {
	return &StandardLogger{logger: l.logger.With(zap.Error(err))}
}

// WithFields adds multiple fields to the log context.
func (l *StandardLogger) WithFields(fields map[string]interface{}) Logger {
	if len(fields) == 0 {
		return l
	}
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return &StandardLogger{logger: l.logger.With(zapFields...)}
}

// Info logs an info-level message.
func (l *StandardLogger) Info(msg string, args ...interface{}) {
	if len(args) > 0 {
		l.logger.Sugar().Infof(msg, args...)
	} else {
		l.logger.Info(msg)
	}
}

// Warn logs a warning-level message.
func (l *StandardLogger) Warn(msg string, args ...interface{}) {
	if len(args) > 0 {
		l.logger.Sugar().Warnf(msg, args...)
	} else {
		l.logger.Warn(msg)
	}
}

// Error logs an error-level message.
func (l *StandardLogger) Error(msg string, args ...interface{}) {
	if len(args) > 0 {
		l.logger.Sugar().Errorf(msg, args...)
	} else {
		l.logger.Error(msg)
	}
}

// Debug logs a debug-level message.
func (l *StandardLogger) Debug(msg string, args ...interface{}) {
	if len(args) > 0 {
		l.logger.Sugar().Debugf(msg, args...)
	} else {
		l.logger.Debug(msg)
	}
}

// Fatal logs a fatal-level message.
func (l *StandardLogger) Fatal(msg string, args ...interface{}) {
	if len(args) > 0 {
		l.logger.Sugar().Fatalf(msg, args...)
	} else {
		l.logger.Fatal(msg)
	}
}

// LogStartup logs application startup information.
func (l *StandardLogger) LogStartup(serviceName string, version string, port int) {
	l.logger.Info("Service starting",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.Int("port", port),
		zap.String("event", "startup"),
	)
}

// LogShutdown logs application shutdown information.
func (l *StandardLogger) LogShutdown(serviceName string, reason string) {
	l.logger.Info("Service shutting down",
		zap.String("service", serviceName),
		zap.String("reason", reason),
		zap.String("event", "shutdown"),
	)
}

// getZapLevel converts string level to zapcore.Level.
func getZapLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
