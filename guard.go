package lattice

import (
	"bytes"
	"runtime"
	"slices"
	"strconv"
)

// cycleGuard tracks the keys in flight on one call chain, per scope.
type cycleGuard struct {
	stacks map[ScopeID][]ComponentKey
}

func (g *cycleGuard) push(scope ScopeID, key ComponentKey) {
	if g.stacks == nil {
		g.stacks = make(map[ScopeID][]ComponentKey)
	}
	g.stacks[scope] = append(g.stacks[scope], key)
}

// pop removes key from the top of the scope's stack.
func (g *cycleGuard) pop(scope ScopeID, key ComponentKey) {
	stack := g.stacks[scope]
	if n := len(stack); n > 0 && stack[n-1] == key {
		g.stacks[scope] = stack[:n-1]
		return
	}

	// Out of order pops only happen if a provider leaked a resolution to
	// another goroutine; remove the newest matching entry.
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == key {
			g.stacks[scope] = slices.Delete(stack, i, i+1)
			return
		}
	}
}

// chain returns the in-flight keys from the first occurrence of key up to
// the top of the stack, followed by key itself. Nil when key is not in flight.
func (g *cycleGuard) chain(scope ScopeID, key ComponentKey) []ComponentKey {
	stack := g.stacks[scope]
	for i, k := range stack {
		if k == key {
			out := slices.Clone(stack[i:])
			return append(out, key)
		}
	}
	return nil
}

func (g *cycleGuard) depth() int {
	n := 0
	for _, stack := range g.stacks {
		n += len(stack)
	}
	return n
}

// request is the state shared by every resolution of one logical Get call.
type request struct {
	guard   cycleGuard
	memo    map[ComponentKey]any
	pending map[ComponentKey][]*Deferred
}

func newRequest() *request {
	return &request{
		memo:    make(map[ComponentKey]any),
		pending: make(map[ComponentKey][]*Deferred),
	}
}

// await registers a handle to be settled when key finishes construction.
func (q *request) await(key ComponentKey, h *Deferred) {
	q.pending[key] = append(q.pending[key], h)
}

// settle completes every handle waiting on key.
func (q *request) settle(key ComponentKey, instance any, err error) {
	handles := q.pending[key]
	if len(handles) == 0 {
		return
	}

	delete(q.pending, key)

	for _, h := range handles {
		h.settle(instance, err)
	}
}

// goroutineID parses the current goroutine's id from its stack header,
// "goroutine 42 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	header := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(header, ' '); i >= 0 {
		header = header[:i]
	}

	id, _ := strconv.ParseUint(string(header), 10, 64)
	return id
}
