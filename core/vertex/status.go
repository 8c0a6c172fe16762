package vertex

// Status is the per-vertex consensus state:
//
//	Unqueried -> Pending -> Accepted -> Final
//	                     -> Rejected
//
// Final is terminal and immutable. Rejected is terminal for safety purposes:
// a rejected vertex is never reconsidered, which rules out oscillation attacks
type Status byte

const (
	StatusUnqueried = Status(iota)
	StatusPending
	StatusAccepted
	StatusRejected
	StatusFinal
)

func (s Status) String() string {
	switch s {
	case StatusUnqueried:
		return "UNQUERIED"
	case StatusPending:
		return "PENDING"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusRejected:
		return "REJECTED"
	case StatusFinal:
		return "FINAL"
	}
	return "WRONG_STATUS"
}

// Terminal statuses never change again
func (s Status) Terminal() bool {
	return s == StatusFinal || s == StatusRejected
}

// validTransition enumerates the allowed edges of the state machine
func validTransition(from, to Status) bool {
	switch from {
	case StatusUnqueried:
		return to == StatusPending || to == StatusRejected
	case StatusPending:
		return to == StatusAccepted || to == StatusRejected || to == StatusFinal
	case StatusAccepted:
		return to == StatusFinal || to == StatusRejected
	}
	return false
}
