package notification

import (
	"context"

	"go.uber.org/zap"

	"authlog-service/internal/util"
)

// SMSSender is a stand-in channel that records deliveries in the log until
// a gateway integration is wired up. It keeps the channel surface stable so
// enabling real SMS later is a construction change, not an API change.
type SMSSender struct {
	logger *zap.Logger
}

func NewSMSSender(logger *zap.Logger) *SMSSender {
	return &SMSSender{logger: logger}
}

func (s *SMSSender) Name() string { return "sms" }

func (s *SMSSender) Send(_ context.Context, recipient string, payload Payload) error {
	if recipient == "" {
		return nil
	}
	s.logger.Info("sms alert (log-only delivery)",
		util.String("title", payload.Title),
		util.Bool("suspicious", payload.Suspicious))
	return nil
}
