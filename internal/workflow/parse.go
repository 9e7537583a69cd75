package workflow

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const maxWorkflowFileBytes = 10 * 1024 * 1024 // 10MB, matches teacher's parser guard

// ParseFile reads and parses a workflow definition from disk, then
// validates it (Validate in validate.go, via ParseBytes).
func ParseFile(filename string) (*Workflow, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	if info.Size() > maxWorkflowFileBytes {
		return nil, fmt.Errorf("workflow file %s (%d bytes) exceeds maximum of %d bytes", filename, info.Size(), maxWorkflowFileBytes)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}

	wf, err := ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(filename), err)
	}
	wf.SourceFile = filename
	return wf, nil
}

// ParseReader parses a workflow definition from an arbitrary reader.
func ParseReader(r io.Reader) (*Workflow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading workflow: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses and validates a workflow definition, returning a
// ready-to-register Workflow on success.
func ParseBytes(data []byte) (*Workflow, error) {
	var wf Workflow
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&wf); err != nil {
		return nil, fmt.Errorf("decoding workflow yaml: %w", err)
	}

	if err := Validate(&wf); err != nil {
		return nil, err
	}

	return &wf, nil
}
