package encoder

import (
	"encoding/json"
	"fmt"

	"github.com/baldanca/subgraph-ingestor/graph"
)

const (
	RecordVertex = "vertex"
	RecordEdge   = "edge"
)

// AdjacencyRow is one append-only record of a fragment. A vertex row carries
// the node's kind, state and JSON properties; an edge row carries the label
// in Type and the target in AdjacentID.
type AdjacencyRow struct {
	Timestamp  int64  `parquet:"ts" json:"ts"`
	RecordType string `parquet:"record_type" json:"record_type"`
	Type       string `parquet:"type" json:"type"`
	VertexID   string `parquet:"vertex_id" json:"vertex_id"`
	AdjacentID string `parquet:"adjacent_id,optional" json:"adjacent_id,omitempty"`
	State      string `parquet:"state,optional" json:"state,omitempty"`
	Data       string `parquet:"data,optional" json:"data,omitempty"`
}

// Rows flattens g into vertex rows followed by edge rows, both in the
// fragment's canonical order.
func Rows(g *graph.Graph) ([]AdjacencyRow, error) {
	ts := int64(g.Timestamp())
	nodes := g.Nodes()
	edges := g.Edges()

	rows := make([]AdjacencyRow, 0, len(nodes)+len(edges))
	for _, n := range nodes {
		data, err := json.Marshal(n.Properties())
		if err != nil {
			return nil, fmt.Errorf("encode properties of %s: %w", n.Key(), err)
		}
		rows = append(rows, AdjacencyRow{
			Timestamp:  ts,
			RecordType: RecordVertex,
			Type:       string(n.Kind()),
			VertexID:   string(n.Key()),
			State:      n.State(),
			Data:       string(data),
		})
	}
	for _, e := range edges {
		rows = append(rows, AdjacencyRow{
			Timestamp:  ts,
			RecordType: RecordEdge,
			Type:       e.Label,
			VertexID:   string(e.From),
			AdjacentID: string(e.To),
		})
	}
	return rows, nil
}
