package notify

import "log/slog"

// NoOpService logs alerts instead of sending them. Used when no alert bot is
// configured.
type NoOpService struct{}

// NewNoOpService creates a new no-op alert service
func NewNoOpService() *NoOpService {
	return &NoOpService{}
}

// NotifyNewPost logs the publish
func (s *NoOpService) NotifyNewPost(identity, dest, link string) {
	slog.Info("ALERT [NEW POST]",
		"identity", identity,
		"dest", dest,
		"link", link)
}

// NotifySystemEvent logs the event
func (s *NoOpService) NotifySystemEvent(eventType, message string) {
	slog.Info("ALERT [EVENT]",
		"eventType", eventType,
		"message", message)
}

// NotifyCriticalError logs the error
func (s *NoOpService) NotifyCriticalError(message, source string) {
	slog.Error("ALERT [CRITICAL]",
		"message", message,
		"source", source)
}

// IsEnabled returns false as nothing is sent
func (s *NoOpService) IsEnabled() bool {
	return false
}
