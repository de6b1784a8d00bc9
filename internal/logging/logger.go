package logging

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger settings
type Config struct {
	Level  string
	Format string // json or console
}

// GetConfig returns logging configuration with defaults
func GetConfig() Config {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	return Config{
		Level:  viper.GetString("log.level"),
		Format: viper.GetString("log.format"),
	}
}

// New builds a zap logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "console") {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}

// InitLogger builds the process logger from viper settings, falling back to
// a production logger if the settings are unusable.
func InitLogger() *zap.Logger {
	logger, err := New(GetConfig())
	if err != nil {
		logger = zap.Must(zap.NewProduction())
		logger.Warn("Falling back to default logger", zap.Error(err))
	}
	return logger
}
