package models

import "time"

// PromotionSnapshot - копия промо-слота на момент сборки дайджеста.
type PromotionSnapshot struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// Snapshot снимает копию слота для дайджеста.
func (p *PromotionEntry) Snapshot() *PromotionSnapshot {
	if p == nil {
		return nil
	}

	return &PromotionSnapshot{Name: p.Name, Message: p.Message, Link: p.Link}
}

// Digest - собранный дайджест, который передаётся Assembler.
type Digest struct {
	ID          string
	Title       string
	SubjectLine string
	GeneratedAt time.Time
	Items       []EnrichedItem
	Promotion   *PromotionSnapshot
}

// DigestHandle - ссылка на сохранённый артефакт дайджеста.
type DigestHandle struct {
	ID       string `json:"id"`
	Location string `json:"location"`
}

// DigestRun - запись об успешно завершённом цикле.
type DigestRun struct {
	ID          string             `json:"id"`
	GeneratedAt time.Time          `json:"generated_at"`
	SubjectLine string             `json:"subject_line"`
	ItemKeys    []string           `json:"item_keys"`
	Promotion   *PromotionSnapshot `json:"promotion,omitempty"`
	Handle      DigestHandle       `json:"handle"`
}

// ArchiveEntry - запись индекса архива дайджестов.
type ArchiveEntry struct {
	ID          string    `json:"id" bson:"_id"`
	Title       string    `json:"title" bson:"title"`
	SubjectLine string    `json:"subject_line" bson:"subject_line"`
	GeneratedAt time.Time `json:"generated_at" bson:"generated_at"`
	ItemCount   int       `json:"item_count" bson:"item_count"`
	Links       []string  `json:"links" bson:"links"`
	Promotion   string    `json:"promotion,omitempty" bson:"promotion,omitempty"`
	// Objects - имя артефакта -> его расположение.
	Objects map[string]string `json:"objects" bson:"objects"`
}
