// Package loader reads and writes node snapshots as JSON Lines and replays
// them into a store.
package loader

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kraitsura/flowtree/pkg/model"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1024 * 1024

// LoadNodesFromFile reads nodes from a JSONL file. Malformed lines are skipped.
func LoadNodesFromFile(path string) ([]model.Node, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no node export found at %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open node file: %w", err)
	}
	defer file.Close()

	nodes, _, err := ReadNodes(file)
	return nodes, err
}

// ReadNodes decodes one node per line and reports how many non-empty lines
// were skipped because they did not decode.
func ReadNodes(r io.Reader) ([]model.Node, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	nodes := []model.Node{}
	skipped := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var n model.Node
		if err := json.Unmarshal(line, &n); err != nil {
			skipped++
			continue
		}
		nodes = append(nodes, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("error reading node file: %w", err)
	}
	return nodes, skipped, nil
}

// WriteNodes encodes nodes one per line.
func WriteNodes(w io.Writer, nodes []model.Node) error {
	enc := json.NewEncoder(w)
	for _, n := range nodes {
		if err := enc.Encode(n); err != nil {
			return fmt.Errorf("encode node %d: %w", n.ID, err)
		}
	}
	return nil
}

// SaveNodesToFile writes nodes to path, replacing any existing file.
func SaveNodesToFile(path string, nodes []model.Node) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create node file: %w", err)
	}
	bw := bufio.NewWriter(file)
	if err := WriteNodes(bw, nodes); err != nil {
		file.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
