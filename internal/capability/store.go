// Package capability persists the assignment of global capability slots
// (text, vision, structured output, tool use) to models. The scheduler reads
// it through the AssignmentSource interface when deciding whether the
// resident model may be released.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"inferd/pkg/types"
)

// Known capability slots.
const (
	CapText             = "text"
	CapVision           = "vision"
	CapStructuredOutput = "structured_output"
	CapToolUse          = "tool_use"
)

var knownCapabilities = map[string]bool{
	CapText:             true,
	CapVision:           true,
	CapStructuredOutput: true,
	CapToolUse:          true,
}

// fileDoc is the on-disk shape.
type fileDoc struct {
	Assignments []types.CapabilityAssignment `json:"assignments" yaml:"assignments" toml:"assignments"`
}

// Store is a file-backed assignment table. Format follows the file extension:
// .yaml/.yml, .json or .toml.
type Store struct {
	path string

	mu          sync.RWMutex
	assignments []types.CapabilityAssignment
}

// NewStore constructs a store over path without touching the filesystem;
// call Load to read it.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the file. A missing file yields an empty table, not an error.
func (s *Store) Load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.assignments = nil
			s.mu.Unlock()
			return nil
		}
		return err
	}
	var doc fileDoc
	switch ext := strings.ToLower(filepath.Ext(s.path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return err
		}
	case ".json":
		if err := json.Unmarshal(b, &doc); err != nil {
			return err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &doc); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported assignments extension: %s", ext)
	}
	s.mu.Lock()
	s.assignments = doc.Assignments
	s.mu.Unlock()
	return nil
}

// ListCapabilityAssignments returns a copy of the table. Implements the
// scheduler's AssignmentSource.
func (s *Store) ListCapabilityAssignments(ctx context.Context) ([]types.CapabilityAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.CapabilityAssignment, len(s.assignments))
	copy(out, s.assignments)
	return out, nil
}

// Assign points a capability slot at a model (or clears it with an empty
// model id) and persists the table.
func (s *Store) Assign(capability, modelID string) error {
	if !knownCapabilities[capability] {
		return fmt.Errorf("unknown capability: %s", capability)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.assignments {
		if s.assignments[i].Capability == capability {
			s.assignments[i].ModelID = modelID
			found = true
			break
		}
	}
	if !found {
		s.assignments = append(s.assignments, types.CapabilityAssignment{Capability: capability, ModelID: modelID})
	}
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	doc := fileDoc{Assignments: s.assignments}
	var (
		b   []byte
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(s.path)); ext {
	case ".yaml", ".yml":
		b, err = yaml.Marshal(doc)
	case ".json":
		b, err = json.MarshalIndent(doc, "", "  ")
	case ".toml":
		b, err = toml.Marshal(doc)
	default:
		return fmt.Errorf("unsupported assignments extension: %s", ext)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o644)
}
