// Package services holds the seams to external collaborators: follow
// notifications pushed to clients and the multicast announcement that a
// reward cycle has completed. The core only triggers these; delivery is
// out of scope.
package services

import (
	"log/slog"
)

// Notifier is told about follow-graph changes so the push transport can
// inform the affected user.
type Notifier interface {
	NotifyFollowed(user, follower string)
	NotifyUnfollowed(user, follower string)
}

// LogNotifier is the default Notifier: it records the event and nothing
// else. The real push transport replaces it at wiring time.
type LogNotifier struct {
	Log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{Log: log.With("component", "notifier")}
}

func (n *LogNotifier) NotifyFollowed(user, follower string) {
	n.Log.Info("followed", "user", user, "follower", follower)
}

func (n *LogNotifier) NotifyUnfollowed(user, follower string) {
	n.Log.Info("unfollowed", "user", user, "follower", follower)
}
