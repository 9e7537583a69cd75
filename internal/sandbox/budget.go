package sandbox

import "sync/atomic"

// defaultCallBudget is the call-budget layer's limit when
// RunOptions.CallBudget is 0 (spec.md §4.2 layer 4). The Engine always
// passes 0, so every code step runs with this default.
const defaultCallBudget = 10

// callBudget is a per-evaluation counter closed over by the bound
// `context.tools.call` host function. It is not safe to share across
// concurrent evaluations — one is constructed per Run call.
type callBudget struct {
	limit int
	used  int64
}

func newCallBudget(limit int) *callBudget {
	if limit <= 0 {
		limit = defaultCallBudget
	}
	return &callBudget{limit: limit}
}

// take increments the counter and reports whether this call is within
// budget. Safe for concurrent use within a single evaluation even though
// goja itself is single-threaded, since the bound host function may be
// invoked from goja's call stack during recovery/interrupt handling.
func (b *callBudget) take() (ok bool, used int) {
	n := atomic.AddInt64(&b.used, 1)
	return int(n) <= b.limit, int(n)
}
