// Package notify delivers operational alerts to a Telegram chat through a
// bot. Alerts are advisory: failures are logged and never propagate into the
// mirror path.
package notify

// System event types reported to the alert sink.
const (
	EventStartup        = "STARTUP"
	EventFailover       = "FAILOVER"
	EventPostSessionDie = "POST_SESSION_DIE"
	EventSessionDeleted = "SESSION_DELETED"
	EventLoginCompleted = "LOGIN_COMPLETED"
)

// Service defines the alert sink interface
type Service interface {
	// NotifyNewPost reports a successful republish with its post link
	NotifyNewPost(identity, dest, link string)

	// NotifySystemEvent reports an operational event
	NotifySystemEvent(eventType, message string)

	// NotifyCriticalError reports a failure needing operator attention
	NotifyCriticalError(message, source string)

	// IsEnabled checks if alerts are configured
	IsEnabled() bool
}
