package smslog

// Package smslog is a code sender that logs instead of dispatching SMS.
// Real deployments substitute a gateway-backed implementation; this one keeps
// the request-code flow observable in environments without an SMS provider.

import (
	"context"
	"log/slog"

	"github.com/phonegate/phonegate/internal/domain/identity"
)

// Sender logs issued codes at info level. The code itself is logged, which
// is acceptable only because this sender never runs against real users.
type Sender struct {
	logger *slog.Logger
}

// New creates a Sender writing to logger, or slog.Default() when nil.
func New(logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{logger: logger}
}

// Send records the dispatch in the log and always succeeds.
func (s *Sender) Send(ctx context.Context, phone, code string) error {
	s.logger.InfoContext(ctx, "sms dispatch (log only)",
		"phone", identity.NormalizePhone(phone),
		"code", code,
	)
	return nil
}
