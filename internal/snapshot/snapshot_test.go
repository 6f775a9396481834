package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"infragraph/internal/storage"
	"infragraph/pkg/models"
)

func TestLoadSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.jsonl")
	content := `{"kind":"node","node":{"id":"aws:123:us-east-1:compute:i-1","provider":"aws","account":"123","region":"us-east-1","resource_type":"compute","native_id":"i-1","name":"api"}}
not json at all
{"kind":"node","node":{"id":"aws:123:us-east-1:database:db-1","provider":"aws","account":"123","region":"us-east-1","resource_type":"database","native_id":"db-1"}}
{"kind":"mystery"}
{"kind":"node","node":{"id":"","provider":"aws","resource_type":"compute"}}
{"kind":"edge","edge":{"id":"edge:1","source_node_id":"aws:123:us-east-1:compute:i-1","target_node_id":"aws:123:us-east-1:database:db-1","relationship_type":"uses","confidence":1}}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	store := storage.NewMemoryStore()
	nodes, edges, err := Load(path, store, models.SystemActor)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if nodes != 2 || edges != 1 {
		t.Fatalf("expected 2 nodes and 1 edge applied, got %d/%d", nodes, edges)
	}

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.NodeCount != 2 || stats.EdgeCount != 1 {
		t.Fatalf("unexpected store contents: %+v", stats)
	}
}

func TestExportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := storage.NewMemoryStore()
	n := &models.Node{
		ID:           models.BuildNodeID("aws", "123", "us-east-1", "compute", "i-1"),
		Provider:     "aws",
		Account:      "123",
		Region:       "us-east-1",
		ResourceType: "compute",
		NativeID:     "i-1",
		Tags:         map[string]string{"env": "prod"},
	}
	if err := src.UpsertNode(n, models.SystemActor); err != nil {
		t.Fatalf("seed: %v", err)
	}

	path := filepath.Join(dir, "out", "graph.jsonl")
	if err := Export(path, src); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := storage.NewMemoryStore()
	nodes, edges, err := Load(path, dst, models.SystemActor)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if nodes != 1 || edges != 0 {
		t.Fatalf("expected 1 node back, got %d/%d", nodes, edges)
	}
	got, err := dst.GetNode(n.ID)
	if err != nil || got == nil {
		t.Fatalf("node missing after round trip: %v", err)
	}
	if got.Tags["env"] != "prod" {
		t.Fatalf("tags lost in round trip: %+v", got.Tags)
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := storage.NewMemoryStore()
	if _, _, err := Load("/does/not/exist.jsonl", store, models.SystemActor); err == nil {
		t.Fatalf("expected an error for a missing snapshot")
	}
}
