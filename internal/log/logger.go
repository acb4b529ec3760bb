package log

import (
	"encoding/json"
	//nolint:depguard
	"log"
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	isync "github.com/imtaco/reqflow/internal/sync"
)

// for init only
func Fatal(v ...any) {
	log.Fatal(v...)
}

// Logger is a zap logger that can derive per-module children.
// Module levels come from LOG_LEVEL__<PARENT>__<CHILD> env vars.
type Logger struct {
	*zap.Logger
	names   []string
	modules *modules
}

// modules builds one zap logger per module path and hands out the same
// instance afterwards; series constructors derive module loggers often.
type modules struct {
	build func(names []string) *zap.Logger
	cache *isync.Map[string, *zap.Logger] // by module path
}

func newModules(build func(names []string) *zap.Logger) *modules {
	return &modules{
		build: build,
		cache: isync.NewMap[string, *zap.Logger](),
	}
}

func (m *modules) get(names []string) *zap.Logger {
	l, _ := m.cache.LoadOrCompute(modulePath(names), func() *zap.Logger {
		return m.build(names)
	})
	return l
}

// Module returns a child logger named after the module path, e.g. "Engine.Polling".
func (l *Logger) Module(name string) *Logger {
	names := make([]string, len(l.names)+1)
	copy(names, l.names)
	names[len(l.names)] = name

	return &Logger{
		names:   names,
		Logger:  l.modules.get(names),
		modules: l.modules,
	}
}

// NewLogger builds a logger from a zap JSON config file, or a console logger
// when empty. LOG_FORMAT=json switches the default logger to JSON output.
func NewLogger(configFile string) (*Logger, error) {
	if configFile == "" {
		return newDefaultLogger(), nil
	}
	return loadLoggerFromFile(configFile)
}

func loadLoggerFromFile(configFile string) (*Logger, error) {
	bs, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}

	cfg := zap.Config{}
	if err := json.Unmarshal(bs, &cfg); err != nil {
		return nil, err
	}

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	// the file sets the floor; module env levels may only raise it
	build := func(names []string) *zap.Logger {
		named := zapLogger.Named(modulePath(names))
		if lv, ok := explicitModuleLevel(names); ok && lv > cfg.Level.Level() {
			return named.WithOptions(zap.IncreaseLevel(lv))
		}
		return named
	}

	return &Logger{
		modules: newModules(build),
		Logger:  zapLogger.Named("main"),
	}, nil
}

func newEncoder() zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if jsonFormat() {
		encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(encCfg)
	}

	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + name + "]")
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

func newDefaultLogger() *Logger {
	encoder := newEncoder()
	writer := zapcore.Lock(zapcore.AddSync(os.Stdout))

	newZap := func(level zapcore.Level) *zap.Logger {
		core := zapcore.NewCore(encoder, writer, zap.NewAtomicLevelAt(level))
		return zap.New(core, zap.AddStacktrace(zapcore.FatalLevel))
	}

	build := func(names []string) *zap.Logger {
		lv := moduleLevel(names)
		logger := newZap(lv).Named(modulePath(names))
		logger.Debug("use module log", zap.Stringer("level", lv))
		return logger
	}

	return &Logger{
		modules: newModules(build),
		Logger:  newZap(moduleLevel(nil)).Named("main"),
	}
}

func NewTest(t *testing.T) *Logger {
	logger := zaptest.NewLogger(t)
	return &Logger{
		Logger: logger,
		modules: newModules(func(names []string) *zap.Logger {
			return logger.Named(modulePath(names))
		}),
	}
}

func NewNop() *Logger {
	logger := zap.NewNop()
	return &Logger{
		Logger: logger,
		modules: newModules(func(_ []string) *zap.Logger {
			return logger
		}),
	}
}
