package dag

import (
	"fmt"

	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/util/lines"
)

func (d *DAG) GetParents(id vertex.ID) ([]vertex.ID, error) {
	vid, found := d.GetVertex(id)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id.StringShort())
	}
	return vid.Parents(), nil
}

func (d *DAG) GetChildren(id vertex.ID) ([]vertex.ID, error) {
	vid, found := d.GetVertex(id)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id.StringShort())
	}
	return vid.Children(), nil
}

// GetPayload returns the body bytes. After pruning the error is
// vertex.ErrPayloadPruned, distinguishable from ErrNotFound
func (d *DAG) GetPayload(id vertex.ID) ([]byte, error) {
	vid, found := d.GetVertex(id)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id.StringShort())
	}
	return vid.Payload()
}

func (d *DAG) GetStatus(id vertex.ID) (vertex.Status, error) {
	vid, found := d.GetVertex(id)
	if !found {
		return vertex.StatusUnqueried, fmt.Errorf("%w: %s", ErrNotFound, id.StringShort())
	}
	return vid.GetStatus(), nil
}

func (d *DAG) NumFinalized() (ret int) {
	for _, vid := range d.Vertices() {
		if vid.GetStatus() == vertex.StatusFinal {
			ret++
		}
	}
	return
}

func (d *DAG) Info(prefix ...string) *lines.Lines {
	ret := lines.New(prefix...)
	ret.Add("vertices: %d, tips: %d", d.NumVertices(), d.NumTips())
	for _, vid := range d.Vertices() {
		ret.Append(vid.Lines("    "))
	}
	return ret
}
