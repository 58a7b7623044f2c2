package logger

import (
	"go-reports/internal/config"
	"go-reports/internal/database"

	"go.uber.org/zap"
)

// NewLogger builds the console logger and tees warnings and errors into Mongo.
func NewLogger(cfg *config.Config, mongodb *database.MongodbDB) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Caller function name ends up in the persisted log rows
	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	dbWriter := NewDBLogWriter(mongodb, cfg)
	finalCore := NewDBCore(baseLogger.Core(), dbWriter, zap.WarnLevel)

	return zap.New(finalCore, zap.AddCaller()).Named(cfg.AppId), nil
}
