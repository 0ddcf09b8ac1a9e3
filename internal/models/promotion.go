package models

import "time"

// PromotionEntry - промо-слот, участвующий в ротации.
//
// Name/Message/Link/Active/Priority задаются каталогом,
// LastUsedAt/AppearanceCount меняет только движок ротации при Advance.
type PromotionEntry struct {
	Name            string     `json:"name"`
	Message         string     `json:"message"`
	Link            string     `json:"link,omitempty"`
	Active          bool       `json:"active"`
	Priority        int        `json:"priority"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty"`
	AppearanceCount int        `json:"appearance_count"`
}

// RotationKind - тип перехода в истории ротации.
type RotationKind string

const (
	RotationAutomatic RotationKind = "automatic"
	RotationManual    RotationKind = "manual"
)

// RotationRecord - запись в истории переходов курсора.
type RotationRecord struct {
	At       time.Time    `json:"at"`
	From     string       `json:"from,omitempty"`
	To       string       `json:"to"`
	Kind     RotationKind `json:"kind"`
	DigestID string       `json:"digest_id,omitempty"`
}

// RotationState - позиция курсора и ограниченная история переходов.
// Упорядочивание кандидатов не хранится и пересчитывается при каждом чтении.
type RotationState struct {
	// CurrentName - пустая строка означает отсутствие текущего слота.
	CurrentName string
	History     []RotationRecord
}

// RotationUpdate - изменение, которое хранилище применяет атомарно
// в рамках PromotionStorage.UpdateRotation.
type RotationUpdate struct {
	// Current - новое значение курсора ("" - сбросить).
	Current string
	// Used - имя слота, у которого обновляются LastUsedAt=UsedAt и AppearanceCount+1.
	// Пустое значение - счётчики не трогаются.
	Used   string
	UsedAt time.Time
	// Record - запись для истории (nil - история не меняется).
	Record *RotationRecord
	// HistoryLimit - сколько последних записей оставить (<=0 - без обрезки).
	HistoryLimit int
}

// RotationStats - сводка по ротации для админки.
type RotationStats struct {
	TotalEntries     int             `json:"total_entries"`
	ActiveEntries    int             `json:"active_entries"`
	CurrentName      string          `json:"current_name,omitempty"`
	TotalTransitions int             `json:"total_transitions"`
	Appearances      map[string]int  `json:"appearances"`
	LastTransition   *RotationRecord `json:"last_transition,omitempty"`
}
