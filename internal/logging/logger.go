// Package logging owns the process-wide zap logger. Every entry goes to
// stdout and to the audit log file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dealerops/pricesync/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// InitLogger builds the global logger from cfg and replaces zap's globals.
func InitLogger(cfg *config.MainConfig) (*zap.Logger, error) {
	var encCfg zapcore.EncoderConfig
	if cfg.Logging.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encCfg = zap.NewProductionEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	// Invalid levels are rejected by config validation; info is the fallback.
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	path := cfg.LogFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	var console zapcore.Encoder
	if cfg.Logging.Development {
		colored := encCfg
		colored.EncodeLevel = zapcore.CapitalColorLevelEncoder
		console = zapcore.NewConsoleEncoder(colored)
	} else {
		console = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(console, zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level),
	)

	log = zap.New(core, zap.AddCaller())
	zap.ReplaceGlobals(log)
	log.Info("Logger initialized", zap.String("level", level.String()), zap.String("file", path))
	return log, nil
}

// GetLogger returns the global logger, or a production logger on stdout
// when InitLogger has not run.
func GetLogger() *zap.Logger {
	if log == nil {
		fallback, err := zap.NewProduction()
		if err != nil {
			return zap.NewNop()
		}
		log = fallback
	}
	return log
}
