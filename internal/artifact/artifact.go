// Package artifact writes the per-run configuration documents to disk.
package artifact

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/oklog/ulid/v2"
)

const (
	RawFile      = "prompts.raw.json"
	ResolvedFile = "prompts.json"
	draftDir     = "draft"
)

// Writer creates run directories below a project and writes documents
// into them atomically.
type Writer struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewWriter() *Writer {
	t := time.Now()
	return &Writer{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0),
		now:     time.Now,
	}
}

// NewRunDir creates <projectDir>/draft/<ulid> and returns its path.
func (w *Writer) NewRunDir(projectDir string) (string, error) {
	w.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(w.now()), w.entropy)
	w.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to create run id: %w", err)
	}

	dir := filepath.Join(projectDir, draftDir, id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run dir: %w", err)
	}
	return dir, nil
}

// WriteJSON marshals v with indentation and replaces dir/name atomically.
func (w *Writer) WriteJSON(dir, name string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := renameio.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// ReadJSON loads a document written by WriteJSON.
func ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
