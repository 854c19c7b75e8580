// Package logging initializes the zap-based logging subsystem shared by the
// library and the command line tools, and centralizes the logger naming
// convention of the replication workers.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Config is the configuration for the logging subsystem.
type Config struct {
	// Level is the logging level.
	Level zapcore.Level `yaml:"level" toml:"level"`
}

// Init initializes the logging subsystem.
//
// Rounds last microseconds, so timestamps carry microsecond resolution:
// the default second-scale stamps would render whole bursts of round traces
// as simultaneous.
func Init(cfg *Config) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000")
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(cfg.Level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.Sugar(), config.Level, nil
}

// Worker derives the logger of a replication worker, named after the given
// algorithm. Worker loops log every round; the logger name lets a deployment
// filter round traces without touching the rest of the process's logs.
func Worker(log *zap.SugaredLogger, algorithm string) *zap.SugaredLogger {
	return log.Named(algorithm)
}
