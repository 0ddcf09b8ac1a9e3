// enrich превращает сырые элементы в текст дайджеста: короткое
// резюме, ключевой вывод и тему письма.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/pipeline"
)

// ErrEmptyResponse - модель вернула пустой текст.
var ErrEmptyResponse = errors.New("empty model response")

// TextGenerator - контракт модели, удобный для подмены в тестах.
type TextGenerator interface {
	GenerateText(ctx context.Context, model, prompt string) (string, error)
}

// Options - параметры промптов.
type Options struct {
	Model string
	// Audience - для кого пишется дайджест, попадает в промпт.
	Audience string
	// MaxContent - сколько символов тела отдавать модели.
	MaxContent int
	// MaxSubject - предельная длина темы письма.
	MaxSubject int
}

// Enricher реализует pipeline.Enricher поверх TextGenerator.
type Enricher struct {
	gen  TextGenerator
	opts Options
}

var _ pipeline.Enricher = (*Enricher)(nil)

// New создаёт Enricher.
func New(gen TextGenerator, opts Options) *Enricher {
	if opts.Model == "" {
		opts.Model = "gemini-2.5-flash"
	}
	if opts.Audience == "" {
		opts.Audience = "busy professionals"
	}
	if opts.MaxContent <= 0 {
		opts.MaxContent = 4000
	}
	if opts.MaxSubject <= 0 {
		opts.MaxSubject = 90
	}

	return &Enricher{gen: gen, opts: opts}
}

// Enrich запрашивает резюме элемента. Пустое тело заменяется заголовком.
func (e *Enricher) Enrich(ctx context.Context, item models.RawItem) (models.EnrichedItem, error) {
	const op = "enrich.Enrich"

	content := strings.TrimSpace(item.Body)
	if content == "" {
		content = strings.TrimSpace(item.Title)
	}
	if content == "" {
		return models.EnrichedItem{}, fmt.Errorf("%s: nothing to summarize", op)
	}

	text, err := e.gen.GenerateText(ctx, e.opts.Model, e.itemPrompt(item, truncate(content, e.opts.MaxContent)))
	if err != nil {
		return models.EnrichedItem{}, fmt.Errorf("%s: %w", op, err)
	}

	summary, takeaway := ParseSummary(text)
	if summary == "" {
		return models.EnrichedItem{}, fmt.Errorf("%s: %w", op, ErrEmptyResponse)
	}

	return models.EnrichedItem{Summary: summary, Takeaway: takeaway}, nil
}

// Subject генерирует тему письма по первым пяти элементам.
func (e *Enricher) Subject(ctx context.Context, title string, items []models.EnrichedItem) (string, error) {
	const op = "enrich.Subject"

	if len(items) == 0 {
		return "", nil
	}

	text, err := e.gen.GenerateText(ctx, e.opts.Model, e.subjectPrompt(title, items))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	subject := CleanSubject(text, e.opts.MaxSubject)
	if subject == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyResponse)
	}

	return subject, nil
}

func (e *Enricher) itemPrompt(item models.RawItem, content string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are writing for a newsletter read by %s.\n\n", e.opts.Audience)
	b.WriteString("Summarize this article for the newsletter.\n\n")
	fmt.Fprintf(&b, "Title: %s\nSource: %s\n\nContent:\n%s\n\n", item.Title, item.Source, content)
	b.WriteString("Rules:\n")
	b.WriteString("1. No more than 3 short sentences, 60 words total.\n")
	b.WriteString("2. Do not repeat the title or quote whole sentences.\n")
	b.WriteString("3. Focus on what is new and relevant to the audience.\n")
	b.WriteString("4. End with one line: 🔑 Key Takeaway: <one actionable insight, max 15 words>\n")

	return b.String()
}

func (e *Enricher) subjectPrompt(title string, items []models.EnrichedItem) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write one email subject line for the %q newsletter read by %s.\n\n", title, e.opts.Audience)
	b.WriteString("Stories:\n")
	for i, it := range items {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "- %s: %s\n", it.Item.Raw.Title, it.Summary)
	}
	fmt.Fprintf(&b, "\nRules: at most %d characters; name the top 2-3 stories separated by \" | \"; ", e.opts.MaxSubject)
	b.WriteString("be specific, no clickbait. Return only the subject line.\n")

	return b.String()
}

// ParseSummary отделяет строку ключевого вывода (🔑 или "Key Takeaway:")
// от текста резюме. Markdown-выделение убирается.
func ParseSummary(text string) (summary, takeaway string) {
	var parts []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.Contains(line, "🔑") || strings.Contains(strings.ToLower(line), "key takeaway:") {
			t := strings.ReplaceAll(line, "🔑", "")
			t = strings.ReplaceAll(t, "**", "")
			t = strings.TrimSpace(t)
			if i := strings.Index(strings.ToLower(t), "key takeaway:"); i >= 0 {
				t = strings.TrimSpace(t[i+len("key takeaway:"):])
			}
			if takeaway == "" {
				takeaway = t
			}
			continue
		}

		parts = append(parts, strings.ReplaceAll(line, "**", ""))
	}

	return strings.Join(parts, " "), takeaway
}

// CleanSubject берёт первую непустую строку, убирает кавычки
// и префикс "Subject:" и обрезает до limit символов.
func CleanSubject(text string, limit int) string {
	var line string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}

	line = strings.NewReplacer(`"`, "", "'", "", "**", "").Replace(line)
	if len(line) >= 8 && strings.EqualFold(line[:8], "subject:") {
		line = line[8:]
	}
	line = strings.TrimSpace(line)

	return truncate(line, limit)
}

// truncate обрезает строку по числу рун.
func truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit]))
}
