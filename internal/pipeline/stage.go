package pipeline

// Stage - стадия цикла. Стадии проходятся строго по порядку.
type Stage int

const (
	StageFetching Stage = iota
	StageFiltering
	StageEnriching
	StageAssembling
	StageCommitting
	StageRotating
	StageRecording
	StageDone
)

var stageNames = [...]string{
	StageFetching:   "FETCHING",
	StageFiltering:  "FILTERING",
	StageEnriching:  "ENRICHING",
	StageAssembling: "ASSEMBLING",
	StageCommitting: "COMMITTING",
	StageRotating:   "ROTATING",
	StageRecording:  "RECORDING",
	StageDone:       "DONE",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}

	return "UNKNOWN"
}

// Cancellable - отмена контекста ещё учитывается на этой стадии.
// С COMMITTING цикл доводится до конца независимо от отмены.
func (s Stage) Cancellable() bool {
	return s < StageCommitting
}

// StageHook вызывается перед каждым переходом from -> to.
// Ошибка останавливает цикл так, будто стадия to упала до начала работы.
type StageHook func(from, to Stage) error
