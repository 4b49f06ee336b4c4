package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

type DevProdLogger struct {
	log *zap.Logger
}

func NewDevProdLogger() (*DevProdLogger, error) {
	logger := DevProdLogger{}

	if strings.ToLower(os.Getenv("APP_ENV")) == "production" {
		log, err := zap.NewProduction()

		if err != nil {
			return nil, err
		}

		logger.log = log
	} else {
		log, err := zap.NewDevelopment()

		if err != nil {
			return nil, err
		}

		logger.log = log
	}

	return &logger, nil
}

func (d *DevProdLogger) GetLogger() *zap.Logger {
	return d.log
}

// NopLogger discards everything, used by tests.
type NopLogger struct {
	log *zap.Logger
}

func NewNopLogger() *NopLogger {
	return &NopLogger{log: zap.NewNop()}
}

func (d *NopLogger) GetLogger() *zap.Logger {
	return d.log
}
