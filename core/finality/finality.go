package finality

import (
	"sync"

	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/global"
)

type (
	Environment interface {
		global.NodeGlobal
		GetVertex(id vertex.ID) (*vertex.WrappedVertex, bool)
		Rivals(key string, id vertex.ID) []vertex.ID
		PostFinalityEvent(id vertex.ID, status vertex.Status)
	}

	// StateMachine drives the per-vertex status along
	// Unqueried -> Pending -> Accepted/Rejected -> Final from voting round
	// outcomes. A vertex becomes Final when its consecutive-success counter
	// reaches beta and every rival in its conflict set is simultaneously
	// Rejected; a vertex becomes Rejected when a rival finalizes first. Both
	// terminal statuses are irreversible: no later votes or admissions can
	// change them
	StateMachine struct {
		Environment

		beta int

		// serializes finalization attempts per conflict set, so two rivals
		// can never decide concurrently
		keyLocksMutex sync.Mutex
		keyLocks      map[string]*sync.Mutex
	}
)

const TraceTag = "finality"

func New(env Environment, beta int) *StateMachine {
	return &StateMachine{
		Environment: env,
		beta:        beta,
		keyLocks:    make(map[string]*sync.Mutex),
	}
}

// MarkQueried moves a fresh vertex into Pending when its first sampling round
// is issued. No-op for any later status
func (fsm *StateMachine) MarkQueried(vid *vertex.WrappedVertex) {
	if vid.GetStatus() == vertex.StatusUnqueried {
		vid.TransitionIfPossible(vertex.StatusPending)
	}
}

// ApplyRoundOutcome feeds one voting round outcome into the state machine and
// returns the resulting status. Outcomes arriving for already decided vertices
// are discarded
func (fsm *StateMachine) ApplyRoundOutcome(vid *vertex.WrappedVertex, preferred bool) vertex.Status {
	if status := vid.GetStatus(); status.Terminal() {
		return status
	}
	if !preferred {
		vid.RecordNotPreferred()
		return vid.GetStatus()
	}

	confidence := vid.RecordPreferred()
	fsm.Tracef(TraceTag, "%s preferred, confidence %d/%d", vid.ID.StringShort, confidence, fsm.beta)

	if confidence >= fsm.beta {
		fsm.tryFinalize(vid)
	}
	return vid.GetStatus()
}

func (fsm *StateMachine) conflictSetLock(key string) *sync.Mutex {
	fsm.keyLocksMutex.Lock()
	defer fsm.keyLocksMutex.Unlock()

	ret, found := fsm.keyLocks[key]
	if !found {
		ret = &sync.Mutex{}
		fsm.keyLocks[key] = ret
	}
	return ret
}

// tryFinalize decides the vertex's conflict set: the candidate is accepted,
// all rivals are rejected, then the candidate becomes Final. If some rival
// already reached Final, the candidate itself is rejected instead; at most
// one member of a conflict set ever finalizes
func (fsm *StateMachine) tryFinalize(vid *vertex.WrappedVertex) {
	lock := fsm.conflictSetLock(vid.ConflictKey())
	lock.Lock()
	defer lock.Unlock()

	if vid.GetStatus().Terminal() {
		return
	}

	rivals := fsm.Rivals(vid.ConflictKey(), vid.ID)
	for _, rivalID := range rivals {
		rival, found := fsm.GetVertex(rivalID)
		if found && rival.GetStatus() == vertex.StatusFinal {
			// conflict resolution loss: expected protocol behavior, not an error
			if vid.TransitionIfPossible(vertex.StatusRejected) {
				fsm.Tracef(TraceTag, "%s rejected: rival %s already final", vid.ID.StringShort, rivalID.StringShort)
				fsm.PostFinalityEvent(vid.ID, vertex.StatusRejected)
			}
			return
		}
	}

	vid.TransitionIfPossible(vertex.StatusAccepted)

	for _, rivalID := range rivals {
		rival, found := fsm.GetVertex(rivalID)
		if !found {
			continue
		}
		if rival.TransitionIfPossible(vertex.StatusRejected) {
			fsm.Tracef(TraceTag, "%s rejected: rival %s wins the conflict set", rivalID.StringShort, vid.ID.StringShort)
			fsm.PostFinalityEvent(rivalID, vertex.StatusRejected)
		}
	}

	if vid.TransitionIfPossible(vertex.StatusFinal) {
		fsm.Tracef(TraceTag, "%s FINAL", vid.ID.StringShort)
		fsm.PostFinalityEvent(vid.ID, vertex.StatusFinal)
	}
}
