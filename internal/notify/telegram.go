package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"dialer-platform/internal/config"
)

// TelegramSender posts campaign notifications through the Telegram bot API.
// The recipient is a chat id.
type TelegramSender struct {
	token   string
	apiBase string
	client  *http.Client
}

func NewTelegramSender(cfg config.TelegramConfig) *TelegramSender {
	return &TelegramSender{
		token:   cfg.BotToken,
		apiBase: cfg.APIBase,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (s *TelegramSender) Send(ctx context.Context, recipient, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id": recipient,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("telegram: encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	var tr telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("telegram: decode response: %w", err)
	}
	if tr.OK {
		return nil
	}

	if resp.StatusCode == http.StatusTooManyRequests || tr.ErrorCode == http.StatusTooManyRequests {
		retry := time.Duration(tr.Parameters.RetryAfter) * time.Second
		if retry <= 0 {
			retry = time.Second
		}
		return &ThrottledError{RetryAfter: retry}
	}
	return fmt.Errorf("telegram: api error %d: %s", tr.ErrorCode, tr.Description)
}
