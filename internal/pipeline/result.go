package pipeline

import (
	"time"

	"github.com/pribylovaa/go-news-digest/internal/models"
)

// ResultKind - исход цикла.
type ResultKind string

const (
	ResultDigest       ResultKind = "digest"
	ResultNoNewContent ResultKind = "no_new_content"
	ResultFailed       ResultKind = "failed"
)

// Counters - счётчики цикла. Ошибки отдельных источников и элементов
// видны только здесь и в логах.
type Counters struct {
	SourcesOK     int `json:"sources_ok"`
	SourcesFailed int `json:"sources_failed"`
	Fetched       int `json:"fetched"`
	New           int `json:"new"`
	EnrichFailed  int `json:"enrich_failed"`
	Included      int `json:"included"`
	Admitted      int `json:"admitted"`
}

// CycleResult - явный результат каждого вызова RunCycle.
type CycleResult struct {
	Kind        ResultKind          `json:"kind"`
	CycleID     string              `json:"cycle_id"`
	Stage       Stage               `json:"-"`
	Err         error               `json:"-"`
	Handle      models.DigestHandle `json:"handle"`
	SubjectLine string              `json:"subject_line,omitempty"`
	Promotion   string              `json:"promotion,omitempty"`
	// NextPromotion - слот, на который ротация перешла после цикла.
	NextPromotion string        `json:"next_promotion,omitempty"`
	Counters      Counters      `json:"counters"`
	Duration      time.Duration `json:"duration"`
}

// OK - цикл завершился без ошибки (дайджест или нет нового).
func (r CycleResult) OK() bool {
	return r.Kind != ResultFailed
}
