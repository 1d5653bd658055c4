// Package logging builds the zap logger used by the engine's services.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Conf configures the logger.
type Conf struct {
	Level      string `toml:"level" mapstructure:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `toml:"format" mapstructure:"format" json:"format" validate:"omitempty,oneof=console json"`
	File       string `toml:"file" mapstructure:"file" json:"file"`                                   // empty logs to stderr only
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb" json:"max_size_mb" validate:"gte=0"` // rotation size
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups" json:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days" json:"max_age_days" validate:"gte=0"`
	Compress   bool   `toml:"compress" mapstructure:"compress" json:"compress"`
}

// New builds a logger from conf. Output always goes to stderr; when File is
// set it is also written to a lumberjack-rotated file.
func New(conf Conf) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if conf.Level != "" {
		if err := level.UnmarshalText([]byte(conf.Level)); err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", conf.Level, err)
		}
	}

	encoderConf := zap.NewProductionEncoderConfig()
	encoderConf.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch conf.Format {
	case "", "console":
		encoderConf.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConf)
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConf)
	default:
		return nil, fmt.Errorf("unknown log format %q", conf.Format)
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if conf.File != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.MaxSizeMB,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAgeDays,
			Compress:   conf.Compress,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
