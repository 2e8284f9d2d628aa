package observability

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger creates a development (colored console) or production (JSON)
// logger tagged with the service name.
func InitLogger(service string, isDev bool) (*zap.Logger, error) {
	var config zap.Config

	if isDev {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.InitialFields = map[string]any{"service": service}

	return config.Build()
}

// SugaredLogger wraps zap.Logger for Printf-style logging
type SugaredLogger struct {
	*zap.SugaredLogger
}

func NewSugaredLogger(logger *zap.Logger) *SugaredLogger {
	return &SugaredLogger{logger.Sugar()}
}
