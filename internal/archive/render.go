package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pribylovaa/go-news-digest/internal/models"
)

// Document - JSON-представление дайджеста в архиве.
type Document struct {
	ID          string                    `json:"id"`
	Title       string                    `json:"title"`
	SubjectLine string                    `json:"subject_line"`
	GeneratedAt time.Time                 `json:"generated_at"`
	Stories     []Story                   `json:"stories"`
	Promotion   *models.PromotionSnapshot `json:"promotion,omitempty"`
}

// Story - один материал дайджеста.
type Story struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Source      string     `json:"source"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Summary     string     `json:"summary"`
	Takeaway    string     `json:"takeaway,omitempty"`
}

// NewDocument собирает документ, сохраняя порядок элементов.
func NewDocument(d models.Digest) Document {
	doc := Document{
		ID:          d.ID,
		Title:       d.Title,
		SubjectLine: d.SubjectLine,
		GeneratedAt: d.GeneratedAt.UTC(),
		Stories:     make([]Story, 0, len(d.Items)),
		Promotion:   d.Promotion,
	}

	for _, it := range d.Items {
		s := Story{
			Title:    it.Item.Raw.Title,
			Link:     it.Item.Raw.Link,
			Source:   it.Item.Raw.Source,
			Summary:  it.Summary,
			Takeaway: it.Takeaway,
		}
		if !it.Item.Raw.PublishedAt.IsZero() {
			pub := it.Item.Raw.PublishedAt.UTC()
			s.PublishedAt = &pub
		}
		doc.Stories = append(doc.Stories, s)
	}

	return doc
}

// RenderJSON - каноничный артефакт дайджеста.
func RenderJSON(doc Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("archive.RenderJSON: %w", err)
	}
	return append(data, '\n'), nil
}

var markdownTmpl = template.Must(template.New("digest").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Format("January 02, 2006") },
	"one":  func(s string) string { return strings.Join(strings.Fields(s), " ") },
}).Parse(`# {{ .Title }}

_{{ date .GeneratedAt }}_

{{ range $i, $s := .Stories -}}
## {{ one $s.Title }}

{{ one $s.Summary }}
{{ if $s.Takeaway }}
🔑 **Key Takeaway:** {{ one $s.Takeaway }}
{{ end }}
[Read more at {{ $s.Source }}]({{ $s.Link }})

{{ end -}}
{{ with .Promotion -}}
---

**Sponsored by {{ .Name }}.** {{ one .Message }}{{ if .Link }} [Learn more]({{ .Link }}){{ end }}
{{ end -}}
`))

// RenderMarkdown - версия дайджеста для рассылки.
func RenderMarkdown(doc Document) ([]byte, error) {
	var b bytes.Buffer
	if err := markdownTmpl.Execute(&b, doc); err != nil {
		return nil, fmt.Errorf("archive.RenderMarkdown: %w", err)
	}
	return b.Bytes(), nil
}
