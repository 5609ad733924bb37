package executor

// State is the progress of a single Migrate call.
type State int

// Migrate moves forward through these states and ends in Complete or Failed.
const (
	NotStarted State = iota
	LockAcquired
	BootstrapEvaluated
	FilesApplied
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case LockAcquired:
		return "lock_acquired"
	case BootstrapEvaluated:
		return "bootstrap_evaluated"
	case FilesApplied:
		return "files_applied"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}
