package transfer

// State is the lifecycle of one response body transfer.
type State int

const (
	NotStarted State = iota
	InProgress
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case InProgress:
		return "InProgress"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Result describes how a transfer ended. Sent counts body bytes only.
type Result struct {
	State State
	Sent  int64
	Total int64
	Err   error
}
