package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/pribylovaa/go-news-digest/pkg/log"
)

// ErrQuotaExceeded - дневной лимит модели исчерпан, повтор бессмысленен.
var ErrQuotaExceeded = errors.New("gemini quota exceeded")

// GeminiClient - генерация текста через официальный SDK Gemini.
type GeminiClient struct {
	client     *genai.Client
	maxRetries int
	baseDelay  time.Duration
}

var _ TextGenerator = (*GeminiClient)(nil)

// NewGeminiClient создаёт клиент с явно переданным ключом.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	const op = "enrich.NewGeminiClient"

	if apiKey == "" {
		return nil, fmt.Errorf("%s: api key is required", op)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &GeminiClient{client: client, maxRetries: 3, baseDelay: 2 * time.Second}, nil
}

// GenerateText отправляет промпт и возвращает текст ответа.
// Временные ошибки (429 по RPM, 500/502/503/504) повторяются с растущей паузой,
// пока позволяет ctx; исчерпанная квота возвращается сразу.
func (c *GeminiClient) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	const op = "enrich.GeminiClient.GenerateText"

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<(attempt-1))
			log.From(ctx).Debug("gemini_retry",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return "", fmt.Errorf("%s: %w", op, ctx.Err())
			case <-t.C:
			}
		}

		result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err == nil {
			text, err := result.Text()
			if err != nil {
				return "", fmt.Errorf("%s: text: %w", op, err)
			}
			return text, nil
		}

		lastErr = err
		switch classify(err.Error()) {
		case errQuota:
			return "", fmt.Errorf("%s: %w: %w", op, ErrQuotaExceeded, err)
		case errTemporary:
			continue
		default:
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}

	return "", fmt.Errorf("%s: max retries exceeded: %w", op, lastErr)
}

type errClass int

const (
	errPermanent errClass = iota
	errTemporary
	errQuota
)

// classify разбирает ошибку SDK по тексту: типизированных ошибок SDK не отдаёт.
func classify(msg string) errClass {
	m := strings.ToLower(msg)

	switch {
	case strings.Contains(m, "per day") || strings.Contains(m, "perday") || strings.Contains(m, "daily"):
		return errQuota
	case strings.Contains(m, "429") || strings.Contains(m, "resource_exhausted") || strings.Contains(m, "rate limit"):
		return errTemporary
	case strings.Contains(m, "500") || strings.Contains(m, "502") || strings.Contains(m, "503") ||
		strings.Contains(m, "504") || strings.Contains(m, "unavailable") || strings.Contains(m, "overloaded"):
		return errTemporary
	case strings.Contains(m, "quota"):
		return errQuota
	}

	return errPermanent
}
