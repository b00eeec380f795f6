package audit

import (
	"context"

	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"

	"go.uber.org/zap"
)

type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, event models.AuthEvent) error {
	s.logger.Info("auth event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("account_id", event.AccountID),
		util.Phone("phone_number", event.PhoneNumber),
		zap.String("reason", event.Reason),
		zap.String("client_id", event.ClientID),
		zap.String("remote_ip", event.RemoteIP),
		zap.Int("event_bucket", event.EventBucket),
		zap.String("date_bucket", event.DateBucket),
	)
	return nil
}
