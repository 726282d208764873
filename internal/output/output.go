// Package output writes analysis results to files.
//
// Every writer replaces its target atomically: content goes to a temporary
// file in the same directory which is then renamed over the target, so a
// reader never sees a partial file.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDeadFunctions is the file the dead-function list goes to.
const DefaultDeadFunctions = "deadFunctions"

// WriteDeadFunctions writes one name per line, each line terminated by a
// newline. Names are written in the given order.
func WriteDeadFunctions(path string, names []string) error {
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return writeFile(path, []byte(b.String()))
}

// Site is where a used function was first seen.
type Site struct {
	Pass string `json:"pass"` // "source" or "disassembly"
	Unit string `json:"unit,omitempty"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	In   string `json:"in,omitempty"`
}

// Report is the machine-readable summary of one run.
type Report struct {
	Binary    string          `json:"binary"`
	Functions []string        `json:"functions"`
	Used      map[string]Site `json:"used"`
	Dead      []string        `json:"dead"`
}

// WriteReport writes r as indented JSON.
func WriteReport(path string, r *Report) error {
	return WriteJSON(path, r)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return writeFile(path, buf.Bytes())
}

// WriteDOT writes a Graphviz document to dir/name.dot, creating dir.
// name may contain path separators for directory grouping.
func WriteDOT(dir, name, dot string) (string, error) {
	path := filepath.Join(dir, name+".dot")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("output: mkdir %s: %w", filepath.Dir(path), err)
	}
	return path, writeFile(path, []byte(dot))
}

// Remove deletes path, treating a missing file as success.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("output: remove %s: %w", path, err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("output: chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("output: rename %s: %w", path, err)
	}
	return nil
}
