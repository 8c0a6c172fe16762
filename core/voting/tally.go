package voting

import (
	"sync"

	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/util/set"
)

// Vote of a single sampled peer. A peer that does not respond within the round
// timeout abstains: it counts towards neither side
type Vote byte

const (
	VoteAbstain = Vote(iota)
	VoteYes
	VoteNo
)

// PeerVote is one peer's response to a sampling query
type PeerVote struct {
	Peer string
	Vote Vote
}

// RoundTally is the per-(vertex, round) record of sampled responses
type RoundTally struct {
	Round   int
	Yes     int
	No      int
	Abstain int
}

func (t *RoundTally) Responded() int {
	return t.Yes + t.No
}

// YesFraction among responding peers only
func (t *RoundTally) YesFraction() float64 {
	if t.Responded() == 0 {
		return 0
	}
	return float64(t.Yes) / float64(t.Responded())
}

// voteLedger tracks per-peer votes and flags equivocating voters. A peer that
// submits contradictory votes for the same vertex within one poll is
// byzantine; all its votes are discounted from then on. Polls are judged in
// isolation: records of a quorum-failed poll are cleared before the retry, so
// a peer answering the repeated question differently is not equivocating
type voteLedger struct {
	mutex           sync.Mutex
	seen            map[voteKey]Vote
	byzantineVoters set.Set[string]
}

type voteKey struct {
	id    vertex.ID
	round int
	peer  string
}

func newVoteLedger() *voteLedger {
	return &voteLedger{
		seen:            make(map[voteKey]Vote),
		byzantineVoters: set.New[string](),
	}
}

// tallyRound scores the responses of one round, discounting byzantine voters.
// Returns the tally and the list of newly detected byzantine peers
func (l *voteLedger) tallyRound(id vertex.ID, round int, responses []PeerVote) (RoundTally, []string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	ret := RoundTally{Round: round}
	newByzantine := make([]string, 0)

	for _, resp := range responses {
		if l.byzantineVoters.Contains(resp.Peer) {
			continue
		}
		key := voteKey{id: id, round: round, peer: resp.Peer}
		if prev, already := l.seen[key]; already {
			if prev != resp.Vote {
				l.byzantineVoters.Insert(resp.Peer)
				newByzantine = append(newByzantine, resp.Peer)
			}
			// either way the earlier vote was already counted
			continue
		}
		l.seen[key] = resp.Vote

		switch resp.Vote {
		case VoteYes:
			ret.Yes++
		case VoteNo:
			ret.No++
		default:
			ret.Abstain++
		}
	}
	return ret, newByzantine
}

func (l *voteLedger) numByzantine() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	return len(l.byzantineVoters)
}

// clearRound discards the partial records of a quorum-failed poll so that the
// retry counts every responder afresh, overlapping or not
func (l *voteLedger) clearRound(id vertex.ID, round int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for key := range l.seen {
		if key.id == id && key.round == round {
			delete(l.seen, key)
		}
	}
}

// purgeVertex drops round records of a vertex which no longer votes, decided
// or stuck
func (l *voteLedger) purgeVertex(id vertex.ID) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for key := range l.seen {
		if key.id == id {
			delete(l.seen, key)
		}
	}
}

func (l *voteLedger) numRecordsFor(id vertex.ID) (ret int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for key := range l.seen {
		if key.id == id {
			ret++
		}
	}
	return
}
