package tooling

import (
	"context"
	"testing"
	"time"

	"github.com/ploston/dael/internal/daelerrors"
	"github.com/ploston/dael/internal/workflow"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyBackend struct {
	id         string
	failTimes  int
	attempts   int
	retryable  bool
}

func (f *flakyBackend) ID() string { return f.id }

func (f *flakyBackend) ListTools(ctx context.Context) ([]Descriptor, error) {
	return []Descriptor{{Name: "flaky"}}, nil
}

func (f *flakyBackend) Call(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	f.attempts++
	if f.attempts <= f.failTimes {
		return nil, daelerrors.New(daelerrors.ToolUnavailable, "not ready yet").WithRetryable(f.retryable)
	}
	return map[string]interface{}{"ok": true}, nil
}

func newTestRegistry(t *testing.T, backend Backend, builtins ...Builtin) *Registry {
	t.Helper()
	r := NewRegistry(zerolog.Nop(), builtins, nil, []Backend{backend})
	require.NoError(t, r.Refresh(context.Background()))
	r.SetMode(ModeRunning)
	return r
}

func TestInvokerSucceedsFirstAttempt(t *testing.T) {
	backend := &flakyBackend{id: "b", retryable: true}
	r := newTestRegistry(t, backend)
	inv := NewInvoker(r, zerolog.Nop())

	result, err := inv.Invoke(context.Background(), "flaky", nil, workflow.Retry{MaxAttempts: 3, InitialDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": true}, result)
	assert.Equal(t, 1, backend.attempts)
}

func TestInvokerRetriesRetryableFailures(t *testing.T) {
	backend := &flakyBackend{id: "b", failTimes: 2, retryable: true}
	r := newTestRegistry(t, backend)
	inv := NewInvoker(r, zerolog.Nop())

	result, err := inv.Invoke(context.Background(), "flaky", nil, workflow.Retry{MaxAttempts: 3, InitialDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": true}, result)
	assert.Equal(t, 3, backend.attempts)
}

func TestInvokerStopsOnNonRetryableFailure(t *testing.T) {
	backend := &flakyBackend{id: "b", failTimes: 5, retryable: false}
	r := newTestRegistry(t, backend)
	inv := NewInvoker(r, zerolog.Nop())

	_, err := inv.Invoke(context.Background(), "flaky", nil, workflow.Retry{MaxAttempts: 3, InitialDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 2})
	require.Error(t, err)
	assert.Equal(t, 1, backend.attempts)
}

func TestInvokerExhaustsMaxAttempts(t *testing.T) {
	backend := &flakyBackend{id: "b", failTimes: 10, retryable: true}
	r := newTestRegistry(t, backend)
	inv := NewInvoker(r, zerolog.Nop())

	_, err := inv.Invoke(context.Background(), "flaky", nil, workflow.Retry{MaxAttempts: 3, InitialDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 2})
	require.Error(t, err)
	assert.Equal(t, 3, backend.attempts)
}

func TestInvokerUnknownToolReturnsToolUnavailable(t *testing.T) {
	r := NewRegistry(zerolog.Nop(), nil, nil, nil)
	require.NoError(t, r.Refresh(context.Background()))
	inv := NewInvoker(r, zerolog.Nop())

	_, err := inv.Invoke(context.Background(), "missing", nil, workflow.Retry{MaxAttempts: 1})
	require.Error(t, err)
	derr, ok := err.(*daelerrors.Error)
	require.True(t, ok)
	assert.Equal(t, daelerrors.ToolUnavailable, derr.ErrCode)
}

func TestBackoffDelayFormula(t *testing.T) {
	r := workflow.Retry{InitialDelay: 1.0, MaxDelay: 30.0, BackoffMultiplier: 2.0}
	assert.Equal(t, time.Second, backoffDelay(r, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(r, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(r, 3))
}

func TestBackoffDelayCapsAtMaxDelay(t *testing.T) {
	r := workflow.Retry{InitialDelay: 1.0, MaxDelay: 3.0, BackoffMultiplier: 2.0}
	assert.Equal(t, 3*time.Second, backoffDelay(r, 5))
}

func TestInvokerRespectsContextCancellation(t *testing.T) {
	backend := &flakyBackend{id: "b", failTimes: 10, retryable: true}
	r := newTestRegistry(t, backend)
	inv := NewInvoker(r, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Invoke(ctx, "flaky", nil, workflow.Retry{MaxAttempts: 3, InitialDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 2})
	require.Error(t, err)
}

func TestInvokerMapsExpiredDeadlineToToolTimeout(t *testing.T) {
	backend := &flakyBackend{id: "b", failTimes: 10, retryable: true}
	r := newTestRegistry(t, backend)
	inv := NewInvoker(r, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()

	_, err := inv.Invoke(ctx, "flaky", nil, workflow.Retry{MaxAttempts: 3, InitialDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 2})
	require.Error(t, err)
	derr, ok := err.(*daelerrors.Error)
	require.True(t, ok)
	assert.Equal(t, daelerrors.ToolTimeout, derr.ErrCode)
}

func TestSandboxInvokerUsesSingleAttempt(t *testing.T) {
	backend := &flakyBackend{id: "b", failTimes: 1, retryable: true}
	r := newTestRegistry(t, backend)
	inv := NewInvoker(r, zerolog.Nop())
	sandboxInv := &SandboxInvoker{Inv: inv}

	assert.True(t, sandboxInv.IsAvailable("flaky"))
	_, err := sandboxInv.Invoke(context.Background(), "flaky", nil)
	require.Error(t, err)
	assert.Equal(t, 1, backend.attempts)
}
