package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ordinex/signalrelay/internal/domain"
	"github.com/ordinex/signalrelay/pkg/retrier"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSink delivers notifications through the Telegram Bot API.
type TelegramSink struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
	retrier *retrier.Retrier
	logger  *zap.Logger
}

func NewTelegramSink(token, chatID string, logger *zap.Logger) *TelegramSink {
	return &TelegramSink{
		baseURL: telegramAPIBase,
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 30 * time.Second},
		retrier: retrier.New(retrier.WithAttempts(3), retrier.WithBaseDelay(time.Second)),
		logger:  logger,
	}
}

// PublishSignal delivers the alert, retrying transient API failures.
func (s *TelegramSink) PublishSignal(ctx context.Context, sig domain.QualifiedSignal, alertOnly bool) error {
	text := FormatSignal(sig, alertOnly)
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.send(ctx, text)
	})
}

// PublishSummary delivers the summary in a single attempt.
func (s *TelegramSink) PublishSummary(ctx context.Context, summary domain.ExecutionSummary) error {
	return s.send(ctx, FormatSummary(summary))
}

func (s *TelegramSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *TelegramSink) send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    s.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return errors.Wrap(err, "marshal telegram payload")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send telegram message")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := errors.Errorf("telegram api status %d: %s", resp.StatusCode, body)
	// client errors other than throttling will not heal on retry
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retrier.Permanent(apiErr)
	}
	return apiErr
}
