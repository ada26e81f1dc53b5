// Package botapi posts messages through the Telegram Bot HTTP API. It is the
// transport behind bot-mode jobs; user-mode jobs post over MTProto instead.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"go.mirrord.dev/internal/common/metrics"
	"go.mirrord.dev/internal/telegram"
)

// DefaultBaseURL is the production Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Config configures the bot transport.
type Config struct {
	// BaseURL overrides the Bot API endpoint, mainly for tests
	BaseURL string

	// Timeout for HTTP requests
	Timeout time.Duration

	// CircuitBreaker settings
	CircuitBreakerEnabled     bool
	CircuitBreakerRequests    uint32        // Request volume threshold
	CircuitBreakerInterval    time.Duration // Stats window
	CircuitBreakerRatio       float64       // Failure ratio to trip
	CircuitBreakerTimeout     time.Duration // Time in open state before half-open
	CircuitBreakerMinRequests uint32        // Min requests before evaluating ratio
}

// DefaultConfig returns sensible defaults for production.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:                   DefaultBaseURL,
		Timeout:                   30 * time.Second,
		CircuitBreakerEnabled:     true,
		CircuitBreakerRequests:    5,
		CircuitBreakerInterval:    60 * time.Second,
		CircuitBreakerRatio:       0.5,
		CircuitBreakerTimeout:     15 * time.Second,
		CircuitBreakerMinRequests: 5,
	}
}

// Client posts through one bot token. Jobs with different tokens get
// separate clients so a broken bot cannot trip the breaker for the others.
type Client struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	baseURL string
	token   string
}

// New creates a bot client for the given token.
func New(token string, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		token:   token,
	}

	if cfg.CircuitBreakerEnabled {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "bot-api",
			MaxRequests: cfg.CircuitBreakerRequests,
			Interval:    cfg.CircuitBreakerInterval,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.CircuitBreakerMinRequests {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= cfg.CircuitBreakerRatio
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				slog.Info("Circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String())

				switch to {
				case gobreaker.StateClosed:
					metrics.BotCircuitBreakerState.Set(float64(metrics.CircuitBreakerClosed))
				case gobreaker.StateOpen:
					metrics.BotCircuitBreakerState.Set(float64(metrics.CircuitBreakerOpen))
				case gobreaker.StateHalfOpen:
					metrics.BotCircuitBreakerState.Set(float64(metrics.CircuitBreakerHalfOpen))
				}
			},
		})
	}

	return c
}

// SentMessage identifies a message posted through the bot.
type SentMessage struct {
	ID           int
	ChatUsername string
}

// Link returns the public t.me link for the message, or LinkUnavailable for
// private chats.
func (m *SentMessage) Link() string {
	if m == nil || m.ID <= 0 || m.ChatUsername == "" {
		return telegram.LinkUnavailable
	}
	return fmt.Sprintf("https://t.me/%s/%d", m.ChatUsername, m.ID)
}

// SendText posts a text message. With html set the text is parsed as
// Bot API HTML.
func (c *Client) SendText(ctx context.Context, chat, text string, html bool) (*SentMessage, error) {
	payload := map[string]any{
		"chat_id":                  chat,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if html {
		payload["parse_mode"] = "HTML"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, "sendMessage", "application/json", bytes.NewReader(body))
}

// SendPhoto posts a photo with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chat string, file *telegram.Upload, caption string, html bool) (*SentMessage, error) {
	return c.sendFile(ctx, "sendPhoto", "photo", chat, file, caption, html)
}

// SendDocument posts a document with an optional caption.
func (c *Client) SendDocument(ctx context.Context, chat string, file *telegram.Upload, caption string, html bool) (*SentMessage, error) {
	return c.sendFile(ctx, "sendDocument", "document", chat, file, caption, html)
}

func (c *Client) sendFile(ctx context.Context, method, field, chat string, file *telegram.Upload, caption string, html bool) (*SentMessage, error) {
	if file == nil || len(file.Data) == 0 {
		return nil, errors.New("empty upload")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", chat); err != nil {
		return nil, err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return nil, err
		}
		if html {
			if err := w.WriteField("parse_mode", "HTML"); err != nil {
				return nil, err
			}
		}
	}
	fw, err := w.CreateFormFile(field, file.Name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(file.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return c.call(ctx, method, w.FormDataContentType(), &buf)
}

func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader) (*SentMessage, error) {
	if c.breaker == nil {
		return c.doCall(ctx, method, contentType, body)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doCall(ctx, method, contentType, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Warn("Bot API circuit breaker open", "method", method)
			return nil, fmt.Errorf("bot %s: %w", method, err)
		}
		return nil, err
	}
	return result.(*SentMessage), nil
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
	Result *struct {
		MessageID int `json:"message_id"`
		Chat      struct {
			Username string `json:"username"`
		} `json:"chat"`
	} `json:"result"`
}

func (c *Client) doCall(ctx context.Context, method, contentType string, body io.Reader) (*SentMessage, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.BotHTTPRequests.WithLabelValues(method, "network_error").Inc()
		return nil, fmt.Errorf("bot %s: %w", method, err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var envelope apiResponse
	parseErr := json.Unmarshal(payload, &envelope)

	if parseErr != nil || !envelope.OK {
		if retry := retryAfter(resp.StatusCode, &envelope); retry > 0 {
			metrics.BotHTTPRequests.WithLabelValues(method, "flood_wait").Inc()
			return nil, &telegram.FloodWaitError{Duration: retry}
		}

		metrics.BotHTTPRequests.WithLabelValues(method, "api_error").Inc()
		if envelope.Description != "" {
			return nil, fmt.Errorf("bot %s failed: %s", method, envelope.Description)
		}
		return nil, fmt.Errorf("bot %s failed: status %d", method, resp.StatusCode)
	}

	metrics.BotHTTPRequests.WithLabelValues(method, "ok").Inc()

	sent := &SentMessage{}
	if envelope.Result != nil {
		sent.ID = envelope.Result.MessageID
		sent.ChatUsername = envelope.Result.Chat.Username
	}
	return sent, nil
}

// retryAfter extracts the server-mandated wait for rate-limited calls.
func retryAfter(status int, envelope *apiResponse) time.Duration {
	if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
		return time.Duration(envelope.Parameters.RetryAfter) * time.Second
	}
	if status == http.StatusTooManyRequests || envelope.ErrorCode == http.StatusTooManyRequests {
		return 5 * time.Second
	}
	return 0
}
