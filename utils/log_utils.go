package utils

import (
	"go.uber.org/zap"
)

var sugar = zap.NewNop().Sugar()

// SetLogger routes the package helpers through logger.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sugar = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// LogInfo example:
//
// LogInfo("listening on %s", addr)
func LogInfo(msg string, vars ...interface{}) {
	sugar.Infof(msg, vars...)
}

// LogDebug example:
//
// LogDebug("[%s] %d hits", status, total)
func LogDebug(msg string, vars ...interface{}) {
	sugar.Debugf(msg, vars...)
}

func LogError(err error) {
	sugar.Error(err)
}
