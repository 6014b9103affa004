// Package logger builds the zap logger shared by every component.
package logger

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// New returns a JSON production logger, or a console logger outside production
func New(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

// Must is New for main packages
func Must(environment string) *zap.Logger {
	l, err := New(environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	return l
}

// GormLevel returns the gorm log level matching the environment
func GormLevel(environment string) gormlogger.LogLevel {
	switch environment {
	case "production":
		return gormlogger.Warn
	case "test":
		return gormlogger.Silent
	default:
		return gormlogger.Info
	}
}
