package log

import (
	"os"
	"strings"

	"github.com/iancoleman/strcase"
	"go.uber.org/zap/zapcore"
)

const (
	levelEnv  = "LOG_LEVEL"
	formatEnv = "LOG_FORMAT"
)

var (
	envFunc = env
)

func env(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func parseLevel(s string) (zapcore.Level, bool) {
	var lvl zapcore.Level
	if err := lvl.Set(strings.ToLower(strings.TrimSpace(s))); err != nil {
		return zapcore.InfoLevel, false
	}
	return lvl, true
}

func parseLevelFromEnv(key string) (zapcore.Level, bool) {
	v, ok := envFunc(key)
	if !ok {
		return zapcore.InfoLevel, false
	}
	return parseLevel(v)
}

func modulePath(names []string) string {
	return strings.Join(names, ".")
}

// levelKeys lists the env keys consulted for a module, most specific first:
// LOG_LEVEL__ENGINE__POLLING, LOG_LEVEL__ENGINE.
func levelKeys(names []string) []string {
	keys := make([]string, 0, len(names))
	prefix := levelEnv
	for _, n := range names {
		prefix += "__" + strcase.ToScreamingSnake(n)
		keys = append(keys, prefix)
	}
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return keys
}

// explicitModuleLevel returns a level set for the module path itself or one
// of its parents, ignoring the global LOG_LEVEL.
func explicitModuleLevel(names []string) (zapcore.Level, bool) {
	for _, k := range levelKeys(names) {
		if lv, ok := parseLevelFromEnv(k); ok {
			return lv, true
		}
	}
	return zapcore.InfoLevel, false
}

func moduleLevel(names []string) zapcore.Level {
	if lv, ok := explicitModuleLevel(names); ok {
		return lv
	}
	if lv, ok := parseLevelFromEnv(levelEnv); ok {
		return lv
	}
	return zapcore.InfoLevel
}

func jsonFormat() bool {
	v, ok := envFunc(formatEnv)
	return ok && strings.EqualFold(v, "json")
}
