package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notification 封装一条告警消息。
type Notification struct {
	Title   string
	Message string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NtfyNotifier publishes plain-text messages to an ntfy topic.
type NtfyNotifier struct {
	server string
	topic  string
	client *http.Client
	logger zerolog.Logger
}

// NewNtfyNotifier 构造 ntfy 告警器。
func NewNtfyNotifier(server, topic string, timeout time.Duration, logger zerolog.Logger) *NtfyNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if server == "" {
		server = "https://ntfy.sh"
	}

	return &NtfyNotifier{
		server: strings.TrimRight(server, "/"),
		topic:  topic,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_ntfy").Logger(),
	}
}

// Notify posts the message body to {server}/{topic} with the title header.
func (n *NtfyNotifier) Notify(ctx context.Context, note Notification) error {
	if n.topic == "" {
		return errors.New("ntfy topic not configured")
	}

	url := fmt.Sprintf("%s/%s", n.server, n.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(note.Message))
	if err != nil {
		return fmt.Errorf("create ntfy request: %w", err)
	}
	req.Header.Set("Title", note.Title)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy 响应码异常: %d", resp.StatusCode)
	}

	n.logger.Info().Str("title", note.Title).Msg("告警已发送 (ntfy)")
	return nil
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	text := note.Message
	if note.Title != "" {
		text = note.Title + "\n" + note.Message
	}

	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("title", note.Title).Msg("告警已发送 (Telegram)")
	return nil
}

// Multi fans a notification out to every configured channel. Per-channel
// failures are collected, never short-circuited; the alert must reach every
// transport that can still take it.
type Multi struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewMulti builds a fan-out notifier.
func NewMulti(logger zerolog.Logger, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, logger: logger.With().Str("component", "alert_multi").Logger()}
}

// Notify delivers to all channels and joins any failures.
func (m *Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			m.logger.Error().Err(err).Str("title", note.Title).Msg("channel delivery failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*NtfyNotifier)(nil)
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*Multi)(nil)
)
