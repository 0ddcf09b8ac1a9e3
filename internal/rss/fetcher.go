package rss

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/pipeline"
	"github.com/pribylovaa/go-news-digest/pkg/log"
)

// Options - настройки Fetcher.
type Options struct {
	// DefaultMaxItems - сколько записей брать, если у источника не задан MaxItems.
	DefaultMaxItems int
	// FullText - догружать страницу материала, если тизер короче MinExcerpt.
	FullText   bool
	MinExcerpt int
	// MaxBodyBytes ограничивает размер ленты и страницы материала.
	MaxBodyBytes int64
	UserAgent    string
}

// Fetcher реализует pipeline.Fetcher для RSS 2.0 и Atom.
// Таймауты задаёт вызывающий через ctx; HTTP-клиент настраивается извне.
type Fetcher struct {
	client *http.Client
	opts   Options
}

// New создаёт новый Fetcher.
func New(client *http.Client, opts Options) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.DefaultMaxItems <= 0 {
		opts.DefaultMaxItems = 5
	}
	if opts.MinExcerpt <= 0 {
		opts.MinExcerpt = 100
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "digest-service/1.0"
	}

	return &Fetcher{client: client, opts: opts}
}

// Fetch загружает ленту источника и возвращает записи в порядке ленты.
// Записи без заголовка или ссылки отбрасываются.
func (f *Fetcher) Fetch(ctx context.Context, src models.Source) ([]models.RawItem, error) {
	const op = "rss.Fetch"

	lg := log.From(ctx)

	doc, err := f.load(ctx, src.URL)
	if err != nil {
		lg.Warn("feed_fetch_failed",
			slog.String("op", op),
			slog.String("url", src.URL),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	base, _ := url.Parse(src.URL)

	label := src.Name
	if label == "" {
		label = feedTitle(doc, base)
	}

	limit := src.MaxItems
	if limit <= 0 {
		limit = f.opts.DefaultMaxItems
	}

	entries := entriesOf(doc)
	out := make([]models.RawItem, 0, min(limit, len(entries)))

	for _, e := range entries {
		if len(out) == limit {
			break
		}

		title := plainText(e.title)
		link := resolveLink(base, e.link)
		if title == "" || link == "" {
			continue
		}

		pub, err := parsePubDate(e.published)
		if err != nil {
			lg.Debug("date_parse_failed",
				slog.String("op", op),
				slog.String("url", src.URL),
				slog.String("value", e.published),
			)
		}

		body := plainText(e.summary)
		if body == "" {
			body = plainText(e.content)
		}

		if f.opts.FullText && len(body) < f.opts.MinExcerpt {
			full, err := f.articleText(ctx, link)
			switch {
			case err != nil:
				lg.Debug("article_fetch_failed",
					slog.String("op", op),
					slog.String("link", link),
					slog.String("err", err.Error()),
				)
			case len(full) > len(body):
				body = full
			}
		}

		out = append(out, models.RawItem{
			Link:        link,
			Title:       title,
			Body:        body,
			Source:      label,
			PublishedAt: pub,
		})
	}

	return out, nil
}

func (f *Fetcher) load(ctx context.Context, src string) (*feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("new_request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status=%d", resp.StatusCode)
	}

	dec := xml.NewDecoder(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false

	var doc feed
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	switch doc.XMLName.Local {
	case "rss", "feed":
	default:
		return nil, fmt.Errorf("decode: unexpected root element %q", doc.XMLName.Local)
	}

	return &doc, nil
}

// entry - общее представление записи RSS и Atom.
type entry struct {
	title, link, published, summary, content string
}

func entriesOf(doc *feed) []entry {
	if doc.XMLName.Local == "feed" {
		out := make([]entry, 0, len(doc.Entries))
		for _, e := range doc.Entries {
			pub := e.Published
			if strings.TrimSpace(pub) == "" {
				pub = e.Updated
			}
			out = append(out, entry{
				title:     e.Title,
				link:      atomAlternate(e),
				published: pub,
				summary:   e.Summary,
				content:   e.Content,
			})
		}
		return out
	}

	out := make([]entry, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		link := strings.TrimSpace(it.Link)
		if link == "" {
			if g := strings.TrimSpace(it.GUID.Value); strings.HasPrefix(g, "http://") || strings.HasPrefix(g, "https://") {
				link = g
			}
		}
		out = append(out, entry{
			title:     it.Title,
			link:      link,
			published: it.PubDate,
			summary:   it.Description,
			content:   it.ContentHTML,
		})
	}
	return out
}

func atomAlternate(e atomEntry) string {
	for _, l := range e.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
	}
	if id := strings.TrimSpace(e.ID); strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		return id
	}
	return ""
}

// feedTitle - метка источника: заголовок ленты, иначе хост.
func feedTitle(doc *feed, base *url.URL) string {
	title := doc.Channel.Title
	if doc.XMLName.Local == "feed" {
		title = doc.Title
	}
	if t := plainText(title); t != "" {
		return t
	}
	if base != nil {
		return base.Host
	}
	return ""
}

// resolveLink делает ссылку абсолютной относительно адреса ленты и убирает фрагмент.
// Всё, что не http(s), отбрасывается.
func resolveLink(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""

	return u.String()
}

// parsePubDate пробует набор популярных форматов и возвращает UTC-время.
func parsePubDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}

	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 02 Jan 06 15:04:05 -0700",
		"Mon, 02 Jan 06 15:04:05 MST",
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
		time.RFC3339Nano,
	}

	var lastErr error
	for _, l := range layouts {
		t, err := time.Parse(l, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, lastErr
}

var _ pipeline.Fetcher = (*Fetcher)(nil)
