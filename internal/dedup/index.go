package dedup

import "github.com/pribylovaa/go-news-digest/internal/models"

// Index - локальный индекс с той же OR-семантикой, что и Engine,
// без хранилища. Используется для дедупликации внутри одной пачки.
type Index struct {
	keys         map[string]struct{}
	fingerprints map[string]struct{}
}

func newIndex() *Index {
	return &Index{
		keys:         make(map[string]struct{}),
		fingerprints: make(map[string]struct{}),
	}
}

// NewIndex создаёт пустой индекс.
func NewIndex() *Index { return newIndex() }

// Seen - совпадение по ключу или по непустому отпечатку.
func (x *Index) Seen(it models.Item) bool {
	if it.IdentityKey != "" {
		if _, ok := x.keys[it.IdentityKey]; ok {
			return true
		}
	}
	if it.Fingerprint != "" {
		if _, ok := x.fingerprints[it.Fingerprint]; ok {
			return true
		}
	}

	return false
}

// Add запоминает элемент.
func (x *Index) Add(it models.Item) {
	if it.IdentityKey != "" {
		x.keys[it.IdentityKey] = struct{}{}
	}
	if it.Fingerprint != "" {
		x.fingerprints[it.Fingerprint] = struct{}{}
	}
}

// Unique оставляет первое вхождение каждого логического элемента.
func Unique(items []models.Item) []models.Item {
	x := newIndex()
	out := make([]models.Item, 0, len(items))

	for _, it := range items {
		if x.Seen(it) {
			continue
		}
		x.Add(it)
		out = append(out, it)
	}

	return out
}
