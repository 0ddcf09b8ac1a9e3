// models содержит доменные сущности digest-service.
package models

import "time"

// Source - внешний источник (RSS-лента), опрашиваемый в каждом цикле.
type Source struct {
	// Name - человекочитаемая метка источника.
	Name string `yaml:"name" json:"name"`
	// URL - адрес ленты.
	URL string `yaml:"url" json:"url"`
	// Priority - чем больше, тем раньше элементы источника попадают в дайджест.
	Priority int `yaml:"priority" json:"priority"`
	// MaxItems - сколько элементов брать из ленты за один цикл (0 - значение по умолчанию).
	MaxItems int `yaml:"max_items" json:"max_items"`
}

// Label возвращает метку источника для логов и KnownItemRecord.
func (s Source) Label() string {
	if s.Name != "" {
		return s.Name
	}

	return s.URL
}

// RawItem - элемент в том виде, в котором его отдал Fetcher.
type RawItem struct {
	Link        string    `json:"link"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`

	// Поля упорядочивания, заполняются оркестратором.
	SourcePriority int `json:"-"`
	SourceOrder    int `json:"-"`
	FetchOrder     int `json:"-"`
}

// Item - кандидат в дайджест с вычисленной идентичностью.
//
// Два элемента считаются одним логическим элементом, если совпадают
// IdentityKey ИЛИ совпадают непустые Fingerprint.
type Item struct {
	IdentityKey string
	Fingerprint string
	Raw         RawItem
}

// KnownItemRecord - запись об уже обработанном элементе.
// Создаётся ровно один раз при допуске и не меняется.
type KnownItemRecord struct {
	IdentityKey string
	Fingerprint string
	FirstSeenAt time.Time
	SourceLabel string
}

// EnrichedItem - элемент после обогащения (summary/takeaway).
type EnrichedItem struct {
	Item     Item
	Summary  string
	Takeaway string
}
