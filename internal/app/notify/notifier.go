// Package notify defines the fire-and-forget notification boundary. Delivery
// failures are logged and swallowed; a notifier must never block or fail a
// settlement path.
package notify

import (
	"context"

	"github.com/taskforge/platform/internal/app/domain/bounty"
	"github.com/taskforge/platform/pkg/logger"
)

// Notifier receives marketplace events. Implementations must return quickly.
type Notifier interface {
	BountyCreated(ctx context.Context, b bounty.Bounty)
	BountySettled(ctx context.Context, b bounty.Bounty)
}

// LogNotifier writes notifications to the log. It is the default collaborator
// when no delivery channel is configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier constructs a logging notifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewDefault("notify")
	}
	return &LogNotifier{log: log}
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) BountyCreated(_ context.Context, b bounty.Bounty) {
	n.log.WithField("bounty_id", b.ID).
		WithField("reward", b.RewardAmount).
		WithField("tags", b.Tags).
		Info("bounty created")
}

func (n *LogNotifier) BountySettled(_ context.Context, b bounty.Bounty) {
	n.log.WithField("bounty_id", b.ID).
		WithField("status", b.Status).
		Info("bounty settled")
}
