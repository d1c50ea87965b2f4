// Package rlog wires the reactor core's logging ambient stack: a
// package-level *zap.SugaredLogger backed, optionally, by a rotating
// file sink via lumberjack. Every component logs recoverable faults
// (EMFILE recovery, epoll_ctl failures, a poller remove with interest
// still set) through this logger rather than the standard log package;
// an EINTR from the poller wait is swallowed without logging.
package rlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var logger = mustBuildDefault()

func mustBuildDefault() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		// zap.NewProduction only fails on a broken encoder config,
		// which never happens with the built-in preset.
		panic(err)
	}
	return l.Sugar()
}

// SetLogger replaces the package-level logger, e.g. with one built by
// NewRotatingFileLogger.
func SetLogger(l *zap.SugaredLogger) {
	logger = l
}

// L returns the current package-level logger.
func L() *zap.SugaredLogger {
	return logger
}

// RotatingFileConfig configures a lumberjack-backed file sink.
type RotatingFileConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotatingFileLogger builds a zap logger that writes JSON-encoded
// entries to a lumberjack-rotated file, for long-lived server
// processes that shouldn't log to stderr indefinitely.
func NewRotatingFileLogger(cfg RotatingFileConfig) *zap.SugaredLogger {
	sink := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(sink),
		zap.InfoLevel,
	)
	return zap.New(core).Sugar()
}

func Debugf(template string, args ...interface{}) { logger.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { logger.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { logger.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { logger.Errorf(template, args...) }
