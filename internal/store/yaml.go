package store

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/richvergo/subtract-sub005/pkg/api"
)

// DirSource serves workflow definitions from YAML files in a directory.
// Files are read on first use and cached until Reload is called
type DirSource struct {
	dir       string
	workflows map[api.WorkflowID]*api.WorkflowDefinition
	mu        sync.Mutex
}

var yamlExtensions = [...]string{".yaml", ".yml"}

var _ WorkflowSource = (*DirSource)(nil)

// NewDirSource creates a source for the given directory
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) GetWorkflow(
	_ context.Context, id api.WorkflowID,
) (*api.WorkflowDefinition, error) {
	defs, err := s.load()
	if err != nil {
		return nil, err
	}
	def, ok := defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return def, nil
}

func (s *DirSource) ListWorkflows(
	context.Context,
) ([]api.WorkflowID, error) {
	defs, err := s.load()
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(defs)), nil
}

// Reload drops the cached definitions so the next lookup re-reads the
// directory
func (s *DirSource) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows = nil
}

func (s *DirSource) load() (map[api.WorkflowID]*api.WorkflowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workflows != nil {
		return s.workflows, nil
	}

	res := map[api.WorkflowID]*api.WorkflowDefinition{}
	err := filepath.WalkDir(s.dir,
		func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isYAML(path) {
				return nil
			}
			def, err := LoadWorkflowFile(path)
			if err != nil {
				return err
			}
			if _, ok := res[def.ID]; ok {
				return fmt.Errorf("%w: duplicate workflow %s in %s",
					ErrInvalidWorkflow, def.ID, path)
			}
			res[def.ID] = def
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	s.workflows = res
	return res, nil
}

// LoadWorkflowFile reads and validates a single YAML workflow definition.
// A definition without an ID takes the file name as its ID
func LoadWorkflowFile(path string) (*api.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	def, err := decodeWorkflowYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.ID == "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		def.ID = api.SanitizeID(api.WorkflowID(base))
	}
	if err := validateWorkflow(def); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParseWorkflowYAML decodes and validates a YAML workflow definition
func ParseWorkflowYAML(data []byte) (*api.WorkflowDefinition, error) {
	def, err := decodeWorkflowYAML(data)
	if err != nil {
		return nil, err
	}
	if err := validateWorkflow(def); err != nil {
		return nil, err
	}
	return def, nil
}

func decodeWorkflowYAML(data []byte) (*api.WorkflowDefinition, error) {
	var def api.WorkflowDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}
	return &def, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains(yamlExtensions[:], ext)
}
