package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Registry holds parsed workflows keyed by name, as an atomically-swapped
// read-only snapshot (spec.md §4.5, §5: refresh never blocks lookup, and a
// failed rebuild leaves the previous snapshot intact).
type Registry struct {
	snapshot atomic.Pointer[map[string]*Workflow]
	dir      string
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry. Call LoadDir to populate it.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{logger: logger.With().Str("component", "workflow_registry").Logger()}
	empty := map[string]*Workflow{}
	r.snapshot.Store(&empty)
	return r
}

// Lookup returns the workflow registered under name, if any.
func (r *Registry) Lookup(name string) (*Workflow, bool) {
	snap := *r.snapshot.Load()
	wf, ok := snap[name]
	return wf, ok
}

// List returns all registered workflows, sorted by name for deterministic
// output (spec.md §8 idempotence property extends naturally to listing).
func (r *Registry) List() []*Workflow {
	snap := *r.snapshot.Load()
	out := make([]*Workflow, 0, len(snap))
	for _, wf := range snap {
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadDir parses every *.yaml/*.yml file in dir and atomically replaces the
// registry's snapshot. A workflow whose Name is empty inherits its
// filename-derived name.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading workflow directory %s: %w", dir, err)
	}

	next := make(map[string]*Workflow, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		wf, err := ParseFile(path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		if wf.Name == "" {
			wf.Name = deriveWorkflowName(entry.Name())
		}
		if existing, dup := next[wf.Name]; dup {
			return fmt.Errorf("workflow name %q declared twice: %s and %s", wf.Name, existing.SourceFile, wf.SourceFile)
		}
		next[wf.Name] = wf
	}

	r.snapshot.Store(&next)
	r.dir = dir
	return nil
}

// Register adds or replaces a single workflow, for programmatic use (the
// MCP frontend also exposes each workflow as a tool; tests construct
// registries this way without a filesystem).
func (r *Registry) Register(wf *Workflow) {
	for {
		old := r.snapshot.Load()
		next := make(map[string]*Workflow, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		next[wf.Name] = wf
		if r.snapshot.CompareAndSwap(old, &next) {
			return
		}
	}
}

// WatchDir starts an fsnotify watch on dir; on any write/create/rename/remove
// event it attempts LoadDir again. A failed rebuild is logged and the
// previous snapshot is kept, per spec.md §4.5. Call the returned stop
// function to end the watch.
func (r *Registry) WatchDir(dir string) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating workflow directory watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching workflow directory %s: %w", dir, err)
	}
	r.watcher = watcher

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				if err := r.LoadDir(dir); err != nil {
					r.logger.Error().Err(err).Str("dir", dir).Msg("workflow hot reload failed, keeping previous snapshot")
					continue
				}
				r.logger.Info().Str("dir", dir).Msg("workflow registry reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Error().Err(err).Msg("workflow directory watch error")
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return watcher.Close()
	}, nil
}

func deriveWorkflowName(filename string) string {
	name := filename
	for _, ext := range []string{".yaml", ".yml"} {
		if filepath.Ext(name) == ext {
			name = name[:len(name)-len(ext)]
		}
	}
	return name
}
