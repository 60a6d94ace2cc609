// Package alert defines the out-of-band operator notification channel used
// for critical security events such as decryption failures.
package alert

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers an operator notification. Implementations are best-effort
// side channels: callers swallow and log a Notify failure, never escalate it
// into the primary error path.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// ZapNotifier writes notifications to the error log. It stands in where no
// mail/pager transport is wired.
type ZapNotifier struct {
	log *zap.Logger
}

// NewZapNotifier constructs a log-backed notifier.
func NewZapNotifier(log *zap.Logger) *ZapNotifier {
	return &ZapNotifier{log: log}
}

// Notify logs the notification at error level.
func (n *ZapNotifier) Notify(_ context.Context, subject, body string) error {
	n.log.Error("operator alert", zap.String("subject", subject), zap.String("body", body))
	return nil
}
