package session

import (
	"github.com/fjod/go_storefront/internal/events"
	"go.uber.org/zap"
)

// Notifier shows messages to the user.
type Notifier interface {
	Success(msg string)
	Failure(msg string)
	// SessionEnded is called once when the session ends without the user asking.
	SessionEnded(reason events.Reason)
}

// LogNotifier writes notifications to the log. Used by the headless binary.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) Success(msg string) {
	n.logger.Info(msg)
}

func (n *LogNotifier) Failure(msg string) {
	n.logger.Warn(msg)
}

func (n *LogNotifier) SessionEnded(reason events.Reason) {
	n.logger.Warn(sessionEndedMessage, zap.String("reason", string(reason)))
}
