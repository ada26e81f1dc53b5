package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.mirrord.dev/internal/common/metrics"
)

// TelegramConfig holds the alert bot configuration. Alerts are disabled when
// BotToken or ChatID is empty.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	// TopicID addresses a forum topic when non-zero.
	TopicID int
}

// TelegramService sends alerts through the Bot API sendMessage method.
type TelegramService struct {
	config     *TelegramConfig
	httpClient *http.Client
	baseURL    string
}

// NewTelegramService creates a new Telegram alert service
func NewTelegramService(config *TelegramConfig) *TelegramService {
	enabled := config.BotToken != "" && config.ChatID != ""
	slog.Info("TelegramAlertService initialized", "enabled", enabled)

	return &TelegramService{
		config: config,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: "https://api.telegram.org",
	}
}

// NotifyNewPost reports a successful republish with its post link
func (s *TelegramService) NotifyNewPost(identity, dest, link string) {
	if !s.IsEnabled() {
		return
	}

	text := fmt.Sprintf(
		"New post mirrored\nIdentity: %s\nChannel: %s\nLink: %s\nTime: %s",
		identity, dest, link, time.Now().Format("2006-01-02 15:04:05"),
	)

	if err := s.send(text); err != nil {
		metrics.AlertsFailed.Inc()
		slog.Error("Failed to send new-post alert", "error", err, "dest", dest)
		return
	}

	metrics.AlertsSent.WithLabelValues("new_post").Inc()
	slog.Debug("New-post alert sent", "dest", dest, "link", link)
}

// NotifySystemEvent reports an operational event
func (s *TelegramService) NotifySystemEvent(eventType, message string) {
	if !s.IsEnabled() {
		return
	}

	text := fmt.Sprintf("[%s]\n%s", eventType, message)

	if err := s.send(text); err != nil {
		metrics.AlertsFailed.Inc()
		slog.Error("Failed to send system event alert", "error", err, "eventType", eventType)
		return
	}

	metrics.AlertsSent.WithLabelValues(strings.ToLower(eventType)).Inc()
	slog.Debug("System event alert sent", "eventType", eventType)
}

// NotifyCriticalError reports a failure needing operator attention
func (s *TelegramService) NotifyCriticalError(message, source string) {
	if !s.IsEnabled() {
		return
	}

	text := fmt.Sprintf("CRITICAL: %s\nSource: %s", message, source)

	if err := s.send(text); err != nil {
		metrics.AlertsFailed.Inc()
		slog.Error("Failed to send critical error alert", "error", err)
		return
	}

	metrics.AlertsSent.WithLabelValues("critical").Inc()
}

// IsEnabled returns whether the alert bot is configured
func (s *TelegramService) IsEnabled() bool {
	return s.config.BotToken != "" && s.config.ChatID != ""
}

// send posts one sendMessage call to the Bot API
func (s *TelegramService) send(text string) error {
	payload := map[string]interface{}{
		"chat_id":                  strings.TrimSpace(s.config.ChatID),
		"text":                     text,
		"disable_web_page_preview": false,
	}
	if s.config.TopicID != 0 {
		payload["message_thread_id"] = s.config.TopicID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.config.BotToken)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("alert bot returned status %d", resp.StatusCode)
	}

	return nil
}
