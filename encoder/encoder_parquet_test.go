package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/baldanca/subgraph-ingestor/graph"
)

func readRows(t testing.TB, b []byte) []AdjacencyRow {
	t.Helper()

	r := parquet.NewGenericReader[AdjacencyRow](bytes.NewReader(b))
	defer r.Close()

	buf := make([]AdjacencyRow, 64)
	var out []AdjacencyRow
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("read parquet: %v", err)
		}
	}
}

func testFragment(t *testing.T) *graph.Graph {
	t.Helper()

	proc, err := graph.NewProcessBuilder().
		Hostname("web-1").
		ProcessID(4242).
		ProcessName("rm").
		State(graph.ProcessExisting).
		LastSeenTimestamp(1000).
		Build()
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	file, err := graph.NewFileBuilder().
		Hostname("web-1").
		FilePath("/tmp/payload.bin").
		State(graph.FileDeleted).
		DeletedTimestamp(1000).
		Build()
	if err != nil {
		t.Fatalf("file: %v", err)
	}

	g := graph.New(1000)
	if err := g.AddNode(proc); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := g.AddNode(file); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := g.AddEdge("deleted", proc.Key(), file.Key()); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := g.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return g
}

func TestRows_VerticesThenEdges(t *testing.T) {
	g := testFragment(t)

	rows, err := Rows(g)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, n := range g.Nodes() {
		r := rows[i]
		if r.RecordType != RecordVertex || r.VertexID != string(n.Key()) || r.Type != string(n.Kind()) {
			t.Fatalf("row %d = %+v, want vertex %s", i, r, n.Key())
		}
		if r.Timestamp != 1000 || r.Data == "" || r.AdjacentID != "" {
			t.Fatalf("row %d = %+v", i, r)
		}
	}
	edge := g.Edges()[0]
	e := rows[2]
	if e.RecordType != RecordEdge || e.Type != "deleted" || e.VertexID != string(edge.From) || e.AdjacentID != string(edge.To) {
		t.Fatalf("edge row = %+v, want %+v", e, edge)
	}
	if e.State != "" || e.Data != "" {
		t.Fatalf("edge row carries vertex columns: %+v", e)
	}
}

func TestParquetEncoder_AdjacencyRoundTrip(t *testing.T) {
	rows, err := Rows(testFragment(t))
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}

	for _, compression := range []string{"", "snappy", "gzip", "zstd"} {
		t.Run("compression="+compression, func(t *testing.T) {
			e := ParquetEncoder[AdjacencyRow]{Compression: compression}
			if err := e.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			data, err := e.Encode(context.Background(), rows)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			got := readRows(t, data)
			if len(got) != len(rows) {
				t.Fatalf("expected %d rows back, got %d", len(rows), len(got))
			}
			for i := range rows {
				if got[i] != rows[i] {
					t.Fatalf("row %d mismatch: got=%+v want=%+v", i, got[i], rows[i])
				}
			}
		})
	}
}

func TestParquetEncoder_ArchiveFileShape(t *testing.T) {
	e := ParquetEncoder[AdjacencyRow]{Compression: "zstd"}
	if e.FileExtension() != ".parquet" || e.ContentType() != parquetContentType {
		t.Fatalf("ext=%q content type=%q", e.FileExtension(), e.ContentType())
	}

	schema := parquet.SchemaOf(AdjacencyRow{})
	for _, col := range []string{"ts", "record_type", "type", "vertex_id", "adjacent_id", "state", "data"} {
		if _, ok := schema.Lookup(col); !ok {
			t.Fatalf("schema missing column %q", col)
		}
	}
}

func TestParquetEncoder_RejectsUnknownCompression(t *testing.T) {
	e := ParquetEncoder[AdjacencyRow]{Compression: "brotli"}
	if e.Validate() == nil {
		t.Fatal("expected Validate error")
	}
	rows, err := Rows(testFragment(t))
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if _, err := e.Encode(context.Background(), rows); err == nil {
		t.Fatal("expected Encode error")
	}
}

func TestParquetEncoder_StopsOnDoneContext(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()

	rows, err := Rows(testFragment(t))
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}

	for name, tc := range map[string]struct {
		ctx  context.Context
		want error
	}{
		"canceled": {canceled, context.Canceled},
		"expired":  {expired, context.DeadlineExceeded},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParquetEncoder[AdjacencyRow]{}.Encode(tc.ctx, rows)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

// -------------------- Benchmarks --------------------

// benchRows mimics n fragments of one vertex pair and one edge each.
func benchRows(n int) []AdjacencyRow {
	rows := make([]AdjacencyRow, 0, 3*n)
	for i := 0; i < n; i++ {
		ts := int64(1_700_000_000_000 + i)
		proc := fmt.Sprintf("process/web-%d/%d", i%16, i)
		file := fmt.Sprintf("file/web-%d/tmp/%d.bin", i%16, i)
		rows = append(rows,
			AdjacencyRow{Timestamp: ts, RecordType: RecordVertex, Type: "Process", VertexID: proc, State: "Existing", Data: `{"process_id":4242}`},
			AdjacencyRow{Timestamp: ts, RecordType: RecordVertex, Type: "File", VertexID: file, State: "Deleted", Data: `{"file_path":"/tmp"}`},
			AdjacencyRow{Timestamp: ts, RecordType: RecordEdge, Type: "deleted", VertexID: proc, AdjacentID: file},
		)
	}
	return rows
}

func BenchmarkParquetEncoder_Adjacency(b *testing.B) {
	ctx := context.Background()
	for _, compression := range []string{"", "snappy", "zstd"} {
		for _, n := range []int{10, 1_000} {
			rows := benchRows(n)
			enc := ParquetEncoder[AdjacencyRow]{Compression: compression}
			b.Run(fmt.Sprintf("compression=%s/fragments=%d", compression, n), func(b *testing.B) {
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := enc.Encode(ctx, rows); err != nil {
						b.Fatalf("Encode: %v", err)
					}
				}
			})
		}
	}
}
