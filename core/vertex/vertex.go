package vertex

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"
)

type (
	// ID is the content-derived vertex identifier: blake2b-256 over the payload
	// concatenated with the sorted parent IDs. Equal payload and parent set always
	// produce an equal ID, so duplicate submissions are detected by key lookup
	ID [IDLength]byte

	// Vertex is the immutable unit of data in the DAG: opaque payload plus
	// causal parent references. The timestamp is an ordering hint only, never
	// used for safety decisions
	Vertex struct {
		ID        ID
		Payload   []byte
		Parents   []ID // sorted ascending, no duplicates
		Timestamp time.Time
	}
)

const IDLength = 32

func CalcID(payload []byte, parents []ID) ID {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	h.Write(payload)
	for i := range parents {
		h.Write(parents[i][:])
	}
	var ret ID
	copy(ret[:], h.Sum(nil))
	return ret
}

// New normalizes the parent list (sort, dedup) and derives the vertex ID
func New(payload []byte, parents []ID, ts time.Time) *Vertex {
	sorted := make([]ID, 0, len(parents))
	seen := make(map[ID]struct{}, len(parents))
	for _, p := range parents {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		sorted = append(sorted, p)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return Less(sorted[i], sorted[j])
	})
	return &Vertex{
		ID:        CalcID(payload, sorted),
		Payload:   payload,
		Parents:   sorted,
		Timestamp: ts,
	}
}

// Less defines the canonical total order on vertex IDs used for all
// deterministic tie-breaks
func Less(id1, id2 ID) bool {
	return bytes.Compare(id1[:], id2[:]) < 0
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ID) StringShort() string {
	return fmt.Sprintf("[%s..]", hex.EncodeToString(id[:4]))
}

func IDFromHexString(s string) (ret ID, err error) {
	var data []byte
	data, err = hex.DecodeString(s)
	if err != nil {
		return
	}
	if len(data) != IDLength {
		err = fmt.Errorf("wrong vertex ID data length: %d", len(data))
		return
	}
	copy(ret[:], data)
	return
}

func (v *Vertex) IsGenesis() bool {
	return len(v.Parents) == 0
}
