package log

import (
	"time"

	"go.uber.org/zap"
)

// Field is an alias for zap.Field to avoid importing zap in other packages.
type Field = zap.Field

func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

func Int(key string, val int) Field {
	return zap.Int(key, val)
}

func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

func String(key string, val string) Field {
	return zap.String(key, val)
}

func Error(err error) Field {
	return zap.Error(err)
}

func Any(key string, val any) Field {
	return zap.Any(key, val)
}

func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

func Time(key string, val time.Time) Field {
	return zap.Time(key, val)
}

// Key tags a log line with the request series key.
func Key(key string) Field {
	return zap.String("key", key)
}

// Scope tags a log line with a single-flight scope.
func Scope(scope string) Field {
	return zap.String("scope", scope)
}

// Middleware tags a log line with the middleware name.
func Middleware(name string) Field {
	return zap.String("middleware", name)
}
