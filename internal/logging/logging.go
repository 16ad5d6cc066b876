// Package logging is a thin wrapper of zap logging library.
package logging

import (
	"os"
	"unicode"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var root = func() *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		os.Stderr,
		zap.DebugLevel,
	)
	return zap.New(core)
}()

// New creates a logger for a package.
// By convention, this should appear in the same .go file as the package docstring:
//  var logger = logging.New("eval")
func New(pkg string) *zap.Logger {
	return root.Named(pkg).
		WithOptions(zap.IncreaseLevel(zap.NewAtomicLevelAt(ParseLevel(GetLevel(pkg)))))
}

// GetLevel returns configured log level of a package as a letter.
//
// IDALLOC_LOG_<pkg> takes precedence over IDALLOC_LOG unless it is empty.
func GetLevel(pkg string) rune {
	lvl := os.Getenv("IDALLOC_LOG_" + pkg)
	if len(lvl) == 0 {
		lvl = os.Getenv("IDALLOC_LOG")
	}
	if len(lvl) == 0 {
		return 0
	}
	return unicode.ToUpper(rune(lvl[0]))
}

// ParseLevel converts a level letter to a zap level, defaulting to info.
func ParseLevel(lvl rune) zapcore.Level {
	switch lvl {
	case 'V', 'D':
		return zapcore.DebugLevel
	case 'I':
		return zapcore.InfoLevel
	case 'W':
		return zapcore.WarnLevel
	case 'E':
		return zapcore.ErrorLevel
	case 'F', 'N':
		return zapcore.DPanicLevel
	}
	return zapcore.InfoLevel
}
