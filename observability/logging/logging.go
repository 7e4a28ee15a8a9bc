package coloyalty

import (
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Логгер сервиса: development при LEDGER_ENV=dev, иначе production.
// LEDGER_LOG_FILE дублирует вывод в файл с ротацией.
func NewLogger() (*zap.Logger, error) {
	var cfg zap.Config
	if os.Getenv("LEDGER_ENV") == "dev" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	path := os.Getenv("LEDGER_LOG_FILE")
	if path == "" {
		return logger, nil
	}
	sink := zapcore.AddSync(newRotator(path))
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

func newRotator(path string) *lumberjack.Logger {
	size := 100
	env := os.Getenv("LEDGER_LOG_MAX_MB")
	if env != "" {
		v, err := strconv.Atoi(env)
		if err == nil && v > 0 {
			size = v
		}
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    size,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
}
