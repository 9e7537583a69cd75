package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookupMiss(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	_, ok := r.Lookup("nonexistent")
	assert.False(t, ok)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	wf := &Workflow{Name: "greet", Version: "1.0.0"}
	r.Register(wf)

	got, ok := r.Lookup("greet")
	require.True(t, ok)
	assert.Same(t, wf, got)
}

func TestRegistryListIsSortedByName(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register(&Workflow{Name: "zeta", Version: "1.0.0"})
	r.Register(&Workflow{Name: "alpha", Version: "1.0.0"})
	r.Register(&Workflow{Name: "mid", Version: "1.0.0"})

	names := make([]string, 0, 3)
	for _, wf := range r.List() {
		names = append(names, wf.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestRegistryLoadDirPopulatesFromFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.yaml"), []byte(validWorkflowYAML), 0o644))

	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.LoadDir(dir))

	wf, ok := r.Lookup("greet")
	require.True(t, ok)
	assert.Equal(t, "greet", wf.Name)
}

func TestRegistryLoadDirDerivesNameFromFilenameWhenUnset(t *testing.T) {
	dir := t.TempDir()
	unnamed := `
version: 1.0.0
steps:
  - id: a
    tool: echo
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unnamed.yaml"), []byte(unnamed), 0o644))

	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.LoadDir(dir))

	_, ok := r.Lookup("unnamed")
	assert.True(t, ok)
}

func TestRegistryLoadDirFailsOnInvalidWorkflowKeepsNothingFromFailedLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("steps: []"), 0o644))

	r := NewRegistry(zerolog.Nop())
	err := r.LoadDir(dir)
	require.Error(t, err)
	assert.Empty(t, r.List())
}

func TestRegistryLoadDirFailedRebuildKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.yaml"), []byte(validWorkflowYAML), 0o644))

	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.LoadDir(dir))
	_, ok := r.Lookup("greet")
	require.True(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("steps: []"), 0o644))
	err := r.LoadDir(dir)
	require.Error(t, err)

	// Previous successful snapshot must still be reachable; LoadDir only
	// swaps in a fully-built map, never a partial one.
	_, ok = r.Lookup("greet")
	assert.True(t, ok)
}

func TestRegistryWatchDirReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.yaml"), []byte(validWorkflowYAML), 0o644))

	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.LoadDir(dir))

	stop, err := r.WatchDir(dir)
	require.NoError(t, err)
	defer stop()

	secondWorkflow := `
name: farewell
version: 1.0.0
steps:
  - id: a
    tool: echo
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "farewell.yaml"), []byte(secondWorkflow), 0o644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Lookup("farewell"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected farewell workflow to appear after hot reload")
}
