// catalog читает YAML-каталог источников и промо-слотов,
// который синхронизируется в хранилище при старте сервиса.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/rotation"
)

// ErrInvalid - каталог не прошёл валидацию.
var ErrInvalid = errors.New("invalid catalog")

// Catalog - содержимое файла каталога.
type Catalog struct {
	Sources    []models.Source `yaml:"sources"`
	Promotions []Promotion     `yaml:"promotions"`
}

// Promotion - промо-слот в файле. Active не задан - слот активен.
type Promotion struct {
	Name     string `yaml:"name"`
	Message  string `yaml:"message"`
	Link     string `yaml:"link"`
	Priority int    `yaml:"priority"`
	Active   *bool  `yaml:"active"`
}

// Load читает и валидирует каталог. Неизвестные поля считаются ошибкой.
func Load(path string) (*Catalog, error) {
	const op = "catalog.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read catalog: %w", op, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return c, nil
}

// Parse разбирает каталог из байтов. Пустой документ - пустой каталог.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		u, err := url.Parse(strings.TrimSpace(s.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: sources[%d]: url must be absolute http(s)", ErrInvalid, i)
		}
		if s.Priority < 0 || s.MaxItems < 0 {
			return fmt.Errorf("%w: sources[%d]: priority and max_items must be >= 0", ErrInvalid, i)
		}
		if _, dup := seen[u.String()]; dup {
			return fmt.Errorf("%w: sources[%d]: duplicate url %s", ErrInvalid, i, u)
		}
		seen[u.String()] = struct{}{}
	}

	names := make(map[string]struct{}, len(c.Promotions))
	for _, p := range c.Promotions {
		if err := rotation.Validate(p.entry()); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		key := strings.ToLower(p.Name)
		if _, dup := names[key]; dup {
			return fmt.Errorf("%w: duplicate promotion %q", ErrInvalid, p.Name)
		}
		names[key] = struct{}{}
	}

	return nil
}

func (p Promotion) entry() models.PromotionEntry {
	active := true
	if p.Active != nil {
		active = *p.Active
	}

	return models.PromotionEntry{
		Name:     strings.TrimSpace(p.Name),
		Message:  strings.TrimSpace(p.Message),
		Link:     strings.TrimSpace(p.Link),
		Priority: p.Priority,
		Active:   active,
	}
}

// Entries переводит промо-слоты каталога в доменные сущности.
func (c *Catalog) Entries() []models.PromotionEntry {
	out := make([]models.PromotionEntry, 0, len(c.Promotions))
	for _, p := range c.Promotions {
		out = append(out, p.entry())
	}
	return out
}
