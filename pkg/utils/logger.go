package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "osusume"

// NewLogger returns a zap logger. When debug is true, uses development config
// (human-readable, debug level); otherwise JSON at info level with ISO8601 times and a
// service field.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return productionConfig().Build(serviceField())
}

func productionConfig() zap.Config {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

func serviceField() zap.Option {
	return zap.Fields(zap.String("service", serviceName))
}
