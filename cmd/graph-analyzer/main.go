package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"infragraph/internal/snapshot"
	"infragraph/internal/storage"
	"infragraph/pkg/models"
)

type finding struct {
	Kind        string              `json:"kind"`
	Node        *models.Node        `json:"node,omitempty"`
	BlastRadius *models.BlastRadius `json:"blast_radius,omitempty"`
}

func main() {
	input := flag.String("input", "output/graph.jsonl", "Graph snapshot JSONL input path")
	output := flag.String("output", "output/findings.jsonl", "Findings JSONL output path")
	node := flag.String("node", "", "Node id to compute a blast radius for (optional)")
	maxDepth := flag.Int("max-depth", 3, "Maximum blast-radius depth")
	flag.Parse()

	store := storage.NewMemoryStore()
	nodes, edges, err := snapshot.Load(*input, store, models.Actor{ID: "graph-analyzer", Kind: "system"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load snapshot: %v\n", err)
		os.Exit(1)
	}

	var findings []finding

	points, err := store.FindArticulationPoints()
	if err != nil {
		fmt.Fprintf(os.Stderr, "articulation analysis failed: %v\n", err)
		os.Exit(1)
	}
	for _, p := range points {
		findings = append(findings, finding{Kind: "articulation-point", Node: p})
	}

	if *node != "" {
		br, err := store.BlastRadius(*node, *maxDepth)
		if err != nil {
			fmt.Fprintf(os.Stderr, "blast radius failed: %v\n", err)
			os.Exit(1)
		}
		findings = append(findings, finding{Kind: "blast-radius", BlastRadius: br})
	}

	if err := writeFindings(*output, findings); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write findings: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("analyzed nodes=%d edges=%d findings=%d output=%s\n", nodes, edges, len(findings), *output)
}

func writeFindings(path string, findings []finding) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range findings {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode finding: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
