package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/orchestra/pkg/api"
)

// ParseWorkflowYAML decodes and validates a single workflow definition.
func ParseWorkflowYAML(data []byte) (api.Workflow, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return api.Workflow{}, fmt.Errorf("workflow: definition payload is empty")
	}
	var wf api.Workflow
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&wf); err != nil {
		return api.Workflow{}, fmt.Errorf("workflow: decode definition: %w", err)
	}
	if err := Validate(wf); err != nil {
		return api.Workflow{}, err
	}
	return wf, nil
}

// LoadWorkflowFile reads a YAML file from disk and returns the parsed workflow.
func LoadWorkflowFile(path string) (api.Workflow, error) {
	info, err := os.Stat(path)
	if err != nil {
		return api.Workflow{}, fmt.Errorf("workflow: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return api.Workflow{}, fmt.Errorf("workflow: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return api.Workflow{}, fmt.Errorf("workflow: read %s: %w", path, err)
	}
	wf, err := ParseWorkflowYAML(data)
	if err != nil {
		return api.Workflow{}, fmt.Errorf("workflow: %s: %w", path, err)
	}
	return wf, nil
}

// LoadWorkflowDir parses every *.yaml / *.yml file in dir, sorted by file
// name. A missing directory yields no workflows.
func LoadWorkflowDir(dir string) ([]api.Workflow, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("workflow: read %s: %w", trimmed, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var out []api.Workflow
	seen := make(map[string]string)
	for _, name := range names {
		path := filepath.Join(trimmed, name)
		wf, err := LoadWorkflowFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[wf.Name]; dup {
			return nil, fmt.Errorf("workflow: %q defined in both %s and %s", wf.Name, prev, path)
		}
		seen[wf.Name] = path
		out = append(out, wf)
	}
	return out, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
