package models

// Status is the canonical status every provider vocabulary is mapped into
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRefunded   Status = "refunded"

	// StatusUnknown is only ever produced by the status mapper and never persisted.
	StatusUnknown Status = "unknown"
)

// ActiveStatuses are the non-terminal statuses.
var ActiveStatuses = []Status{StatusPending, StatusProcessing}

// rank orders statuses along the lifecycle; terminal statuses share the top rank.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed, StatusRefunded:
		return 2
	default:
		return -1
	}
}

// IsTerminal reports whether the status can no longer change.
func (s Status) IsTerminal() bool {
	return s.rank() == 2
}

// IsActive reports whether the status is pending or processing.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusProcessing
}

// CanTransition reports whether a transaction of the given kind may move from one status to
// another. Only forward moves are allowed, and refunded is reachable only by refunds.
func CanTransition(kind Kind, from, to Status) bool {
	if from.rank() < 0 || to.rank() < 0 || from.IsTerminal() {
		return false
	}
	if to == StatusRefunded && kind != KindRefund {
		return false
	}
	if to == StatusCompleted && kind == KindRefund {
		return false
	}
	return to.rank() > from.rank()
}

// SuccessStatus is the terminal success status for a kind.
func SuccessStatus(kind Kind) Status {
	if kind == KindRefund {
		return StatusRefunded
	}
	return StatusCompleted
}

// Persisted converts a mapped canonical status into the status stored for a kind.
// Refunds record provider success as refunded.
func Persisted(kind Kind, mapped Status) Status {
	if mapped == StatusCompleted {
		return SuccessStatus(kind)
	}
	return mapped
}
