package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured logger bound to one component of the service.
type Logger struct {
	*zap.SugaredLogger
	component string
}

// New creates a logger for the given environment ("production" selects JSON
// output at info level; anything else is console output at debug level).
func New(env, component string) *Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	level := zap.DebugLevel
	if env == "production" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
		level = zap.InfoLevel
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zap.NewAtomicLevelAt(level))
	base := zap.New(core, zap.AddCaller())

	return &Logger{
		SugaredLogger: base.Sugar().With("component", component),
		component:     component,
	}
}

// Nop returns a logger that discards everything; used by tests and as a
// fallback when a collaborator is built without one.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar(), component: "nop"}
}

// Named returns a child logger for a sub-component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.Named(component),
		component:     component,
	}
}

// With returns a logger with additional key/value fields.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(keysAndValues...),
		component:     l.component,
	}
}

// Desugar exposes the underlying zap logger for libraries that need it.
func (l *Logger) Desugar() *zap.Logger {
	return l.SugaredLogger.Desugar()
}
