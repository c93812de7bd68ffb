package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultTelegramAPI is the Bot API base URL
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Token   string
	ChatID  string
	Enabled bool
	APIURL  string
	Timeout time.Duration
}

// Telegram sends notifications through the Telegram Bot API
type Telegram struct {
	token      string
	chatID     string
	enabled    bool
	apiURL     string
	httpClient *http.Client
}

// telegramResponse represents the response from Telegram API
type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewTelegram creates a Telegram sink
func NewTelegram(config TelegramConfig) *Telegram {
	if config.APIURL == "" {
		config.APIURL = DefaultTelegramAPI
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Telegram{
		token:      config.Token,
		chatID:     config.ChatID,
		enabled:    config.Enabled,
		apiURL:     strings.TrimRight(config.APIURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

func (t *Telegram) ready() error {
	if !t.enabled {
		return ErrDisabled
	}
	if t.token == "" || t.chatID == "" {
		return fmt.Errorf("telegram bot token or chat ID not configured")
	}
	return nil
}

// SendText sends a text message
func (t *Telegram) SendText(ctx context.Context, text string) error {
	if err := t.ready(); err != nil {
		return err
	}

	payload := map[string]interface{}{
		"chat_id": t.chatID,
		"text":    text,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("sendMessage"), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return t.do(req)
}

// SendImage sends a JPEG photo with an optional caption
func (t *Telegram) SendImage(ctx context.Context, jpeg []byte, caption string) error {
	if err := t.ready(); err != nil {
		return err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", t.chatID); err != nil {
		return fmt.Errorf("failed to write chat_id field: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("failed to write caption field: %w", err)
		}
	}

	part, err := writer.CreateFormFile("photo", "detection.jpg")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return t.do(req)
}

func (t *Telegram) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.apiURL, t.token, method)
}

// do sends req and checks the API envelope. The token is part of the URL
// so transport errors are reported without it.
func (t *Telegram) do(req *http.Request) error {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to telegram: %s", redact(err.Error(), t.token))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var telegramResp telegramResponse
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return fmt.Errorf("failed to unmarshal response (status %d): %w", resp.StatusCode, err)
	}

	if !telegramResp.OK {
		return fmt.Errorf("telegram API error %d: %s", telegramResp.ErrorCode, telegramResp.Description)
	}

	return nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
