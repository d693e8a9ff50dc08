package graph

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrConflictingNode = errors.New("node conflicts with existing node of same key")
	ErrMissingEndpoint = errors.New("edge endpoint not in graph")
	ErrSealed          = errors.New("graph is sealed")
	ErrEmptyLabel      = errors.New("edge label is empty")
	ErrNilNode         = errors.New("node is nil")
)

// Edge is a directed, labeled relation between two nodes of the same fragment.
type Edge struct {
	Label string  `json:"label"`
	From  NodeKey `json:"from"`
	To    NodeKey `json:"to"`
}

// Graph is the fragment produced from one event. It is mutable until Seal and
// read-only afterwards, at which point it is safe to share between goroutines.
type Graph struct {
	timestamp uint64
	nodes     map[NodeKey]Node
	edges     map[Edge]struct{}
	deferred  []Edge
	sealed    bool
}

// New returns an empty fragment whose representative time is timestamp.
func New(timestamp uint64) *Graph {
	return &Graph{
		timestamp: timestamp,
		nodes:     make(map[NodeKey]Node),
		edges:     make(map[Edge]struct{}),
	}
}

func (g *Graph) Timestamp() uint64 { return g.timestamp }
func (g *Graph) Sealed() bool      { return g.sealed }
func (g *Graph) NodeCount() int    { return len(g.nodes) }
func (g *Graph) EdgeCount() int    { return len(g.edges) }
func (g *Graph) IsEmpty() bool     { return len(g.nodes) == 0 }

// Node returns the node stored under key.
func (g *Graph) Node(key NodeKey) (Node, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

// AddNode inserts n. Adding a node equal to the one already stored under the
// same key is a no-op; a different node under the same key is an error.
func (g *Graph) AddNode(n Node) error {
	if g.sealed {
		return ErrSealed
	}
	if n == nil {
		return ErrNilNode
	}
	if prev, ok := g.nodes[n.Key()]; ok {
		if sameNode(prev, n) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrConflictingNode, n.Key())
	}
	g.nodes[n.Key()] = n
	return nil
}

// AddEdge records label from -> to. Both endpoints must already be present.
func (g *Graph) AddEdge(label string, from, to NodeKey) error {
	if g.sealed {
		return ErrSealed
	}
	if label == "" {
		return ErrEmptyLabel
	}
	if err := g.checkEndpoints(from, to); err != nil {
		return err
	}
	g.edges[Edge{Label: label, From: from, To: to}] = struct{}{}
	return nil
}

// DeferEdge records an edge whose endpoints may be added later. Endpoints are
// checked by Seal.
func (g *Graph) DeferEdge(label string, from, to NodeKey) error {
	if g.sealed {
		return ErrSealed
	}
	if label == "" {
		return ErrEmptyLabel
	}
	g.deferred = append(g.deferred, Edge{Label: label, From: from, To: to})
	return nil
}

func (g *Graph) checkEndpoints(from, to NodeKey) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("%w: from %s", ErrMissingEndpoint, from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("%w: to %s", ErrMissingEndpoint, to)
	}
	return nil
}

// Seal resolves deferred edges and freezes the fragment. It fails, leaving the
// graph unsealed, when any deferred edge still references an absent node.
// Sealing an already sealed graph is a no-op.
func (g *Graph) Seal() error {
	if g.sealed {
		return nil
	}
	var errs []error
	for _, e := range g.deferred {
		if err := g.checkEndpoints(e.From, e.To); err != nil {
			errs = append(errs, fmt.Errorf("edge %q: %w", e.Label, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	for _, e := range g.deferred {
		g.edges[e] = struct{}{}
	}
	g.deferred = nil
	g.sealed = true
	return nil
}

// Nodes returns the nodes ordered by key.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Edges returns the edges ordered by label, then from, then to.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		if a.From != b.From {
			return a.From < b.From
		}
		return a.To < b.To
	})
	return out
}

// MarshalJSON emits a canonical encoding: equal fragments encode to equal bytes.
func (g *Graph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"timestamp":%d,"nodes":[`, g.timestamp)
	for i, n := range g.Nodes() {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalNode(n)
		if err != nil {
			return nil, fmt.Errorf("marshal node %s: %w", n.Key(), err)
		}
		buf.Write(b)
	}
	buf.WriteString(`],"edges":`)
	edges, err := json.Marshal(g.Edges())
	if err != nil {
		return nil, err
	}
	buf.Write(edges)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Digest is the hex sha256 of the canonical JSON encoding.
func (g *Graph) Digest() (string, error) {
	b, err := g.MarshalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
