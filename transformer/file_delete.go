package transformer

import (
	"context"
	"fmt"

	"github.com/baldanca/subgraph-ingestor/graph"
)

// FileDelete is a generic "process deleted file" event.
type FileDelete struct {
	DeleterProcessID   uint64 `json:"deleter_process_id"`
	DeleterProcessName string `json:"deleter_process_name,omitempty"`
	Path               string `json:"path"`
	Hostname           string `json:"hostname"`
	Timestamp          uint64 `json:"timestamp"`
}

// TranslateFileDelete links the deleting process to the deleted file.
func TranslateFileDelete(_ context.Context, ev FileDelete) (*graph.Graph, error) {
	deleter, err := graph.NewProcessBuilder().
		Hostname(ev.Hostname).
		State(graph.ProcessExisting).
		ProcessName(ev.DeleterProcessName).
		ProcessID(ev.DeleterProcessID).
		LastSeenTimestamp(ev.Timestamp).
		Build()
	if err != nil {
		return nil, fmt.Errorf("file delete: %w", err)
	}

	file, err := graph.NewFileBuilder().
		Hostname(ev.Hostname).
		State(graph.FileDeleted).
		DeletedTimestamp(ev.Timestamp).
		FilePath(ev.Path).
		Build()
	if err != nil {
		return nil, fmt.Errorf("file delete: %w", err)
	}

	g := graph.New(ev.Timestamp)
	if err := g.DeferEdge("deleted", deleter.Key(), file.Key()); err != nil {
		return nil, err
	}
	if err := addNodes(g, deleter, file); err != nil {
		return nil, err
	}
	if err := g.Seal(); err != nil {
		return nil, err
	}
	return g, nil
}

var FileDeleteTranslator Translator[FileDelete] = TranslatorFunc[FileDelete](TranslateFileDelete)

func addNodes(g *graph.Graph, nodes ...graph.Node) error {
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return err
		}
	}
	return nil
}
