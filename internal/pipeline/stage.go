package pipeline

// State is a position in the run state machine.
type State string

const (
	StateImage       State = "image"
	StateMesh        State = "mesh"
	StatePostprocess State = "postprocess"
	StateValidate    State = "validate"
	StateDeliver     State = "deliver"
	StateDone        State = "done"
	StateSkipped     State = "skipped"
	StateFailed      State = "failed"
)

// Terminal reports whether no further stage runs from s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateSkipped || s == StateFailed
}

// stageOrder lists the working states in execution order.
var stageOrder = []State{StateImage, StateMesh, StatePostprocess, StateValidate, StateDeliver}

// StageStatus is the per-stage outcome.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageSkipped   StageStatus = "skipped"
	StageFailed    StageStatus = "failed"
)

// StageResult records one stage of a run.
type StageResult struct {
	Stage      State       `json:"stage"`
	Status     StageStatus `json:"status"`
	Artifacts  []string    `json:"artifacts,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}
