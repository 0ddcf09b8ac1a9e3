package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/pipeline"
)

// Passthrough - обогащение без модели: резюме - первые предложения тела.
// Используется, когда ключ Gemini не задан.
type Passthrough struct {
	// MaxRunes ограничивает длину резюме.
	MaxRunes int
}

var _ pipeline.Enricher = Passthrough{}

func (p Passthrough) Enrich(_ context.Context, item models.RawItem) (models.EnrichedItem, error) {
	const op = "enrich.Passthrough.Enrich"

	text := strings.TrimSpace(item.Body)
	if text == "" {
		text = strings.TrimSpace(item.Title)
	}
	if text == "" {
		return models.EnrichedItem{}, fmt.Errorf("%s: nothing to summarize", op)
	}

	limit := p.MaxRunes
	if limit <= 0 {
		limit = 300
	}

	return models.EnrichedItem{Summary: firstSentences(text, 3, limit)}, nil
}

// Subject пустой - оркестратор подставит тему по дате.
func (Passthrough) Subject(context.Context, string, []models.EnrichedItem) (string, error) {
	return "", nil
}

// firstSentences возвращает до n предложений, но не длиннее limit рун.
func firstSentences(text string, n, limit int) string {
	text = strings.Join(strings.Fields(text), " ")

	end, count := len(text), 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(text) && text[i+1] != ' ' {
			continue
		}
		count++
		if count == n {
			end = i + 1
			break
		}
	}

	return truncate(text[:end], limit)
}
