package sms

import (
	"context"

	"go.uber.org/zap"
)

// LogGateway writes messages to the log instead of sending them. Development only.
type LogGateway struct {
	logger *zap.Logger
}

func NewLogGateway(logger *zap.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Send(_ context.Context, phoneNumber, message string) error {
	g.logger.Warn("DEV SMS (not sent)",
		zap.String("phone_number", phoneNumber),
		zap.String("message", message))
	return nil
}
