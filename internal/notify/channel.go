package notify

import (
	"github.com/mvalente/daybook/internal/store"
	"go.uber.org/zap"
)

// LogChannel presents notifications through the daemon log. It is the
// fallback delivery channel when no platform presenter is wired in.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel creates a log-backed delivery channel.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Present logs the notification content.
func (c *LogChannel) Present(n store.Notification) {
	c.logger.Info("notification",
		zap.String("id", n.ID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.Int64("scheduled_at", n.ScheduledAt))
}
