package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns the process logger. Production writes JSON at info level;
// anything else gets a colored console encoder at debug level.
func New(production bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if production {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.OutputPaths = []string{"stdout"}

	zl, err := cfg.Build(zap.Fields(zap.String("service", "qrattend")))
	if err != nil {
		panic("build logger: " + err.Error())
	}
	return zl
}
