package checkpoint

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/util/lines"
	"golang.org/x/crypto/blake2b"
)

// Checkpoint is a compact commitment to a finalized prefix of the DAG.
// RootHash binds the exact total order, so two nodes comparing checkpoints
// with equal SequenceNo and RootHash agree on every finalized vertex and on
// their relative order
type Checkpoint struct {
	SequenceNo   uint64      `json:"sequence_no"`
	CreatedAt    time.Time   `json:"created_at"`
	NumVertices  int         `json:"num_vertices"`
	NumFinalized int         `json:"num_finalized"`
	RootHash     [32]byte    `json:"-"`
	Frontier     []vertex.ID `json:"-"`
}

// checkpointJSON carries hex encodings of the binary fields
type checkpointJSON struct {
	SequenceNo   uint64    `json:"sequence_no"`
	CreatedAt    time.Time `json:"created_at"`
	NumVertices  int       `json:"num_vertices"`
	NumFinalized int       `json:"num_finalized"`
	RootHash     string    `json:"root_hash"`
	Frontier     []string  `json:"frontier"`
}

// ComputeRootHash commits to the total order: blake2b-256 over the
// concatenation of finalized vertex IDs in order position
func ComputeRootHash(order []vertex.ID) [32]byte {
	buf := make([]byte, 0, len(order)*vertex.IDLength)
	for _, id := range order {
		buf = append(buf, id[:]...)
	}
	return blake2b.Sum256(buf)
}

// New builds a checkpoint from the current total order. The frontier is the
// set of finalized vertices nothing finalized builds on top of, i.e. the
// attachment surface a restoring node continues from
func New(seqNo uint64, numVertices int, order []vertex.ID, frontier []vertex.ID) *Checkpoint {
	return &Checkpoint{
		SequenceNo:   seqNo,
		CreatedAt:    time.Now(),
		NumVertices:  numVertices,
		NumFinalized: len(order),
		RootHash:     ComputeRootHash(order),
		Frontier:     frontier,
	}
}

func (c *Checkpoint) Bytes() []byte {
	j := checkpointJSON{
		SequenceNo:   c.SequenceNo,
		CreatedAt:    c.CreatedAt,
		NumVertices:  c.NumVertices,
		NumFinalized: c.NumFinalized,
		RootHash:     hex.EncodeToString(c.RootHash[:]),
		Frontier:     make([]string, 0, len(c.Frontier)),
	}
	for _, id := range c.Frontier {
		j.Frontier = append(j.Frontier, id.String())
	}
	ret, err := json.Marshal(&j)
	if err != nil {
		panic(err)
	}
	return ret
}

func CheckpointFromBytes(data []byte) (*Checkpoint, error) {
	var j checkpointJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	ret := &Checkpoint{
		SequenceNo:   j.SequenceNo,
		CreatedAt:    j.CreatedAt,
		NumVertices:  j.NumVertices,
		NumFinalized: j.NumFinalized,
		Frontier:     make([]vertex.ID, 0, len(j.Frontier)),
	}
	rootHash, err := hex.DecodeString(j.RootHash)
	if err != nil {
		return nil, err
	}
	copy(ret.RootHash[:], rootHash)
	for _, idStr := range j.Frontier {
		id, err := vertex.IDFromHexString(idStr)
		if err != nil {
			return nil, err
		}
		ret.Frontier = append(ret.Frontier, id)
	}
	return ret, nil
}

func (c *Checkpoint) Lines(prefix ...string) *lines.Lines {
	ret := lines.New(prefix...)
	ret.Add("sequence no: %d", c.SequenceNo).
		Add("created at: %s", c.CreatedAt.Format(time.RFC3339)).
		Add("vertices: %d, finalized: %d", c.NumVertices, c.NumFinalized).
		Add("root hash: %s", hex.EncodeToString(c.RootHash[:])).
		Add("frontier size: %d", len(c.Frontier))
	return ret
}
