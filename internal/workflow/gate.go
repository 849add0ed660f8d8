package workflow

// Gate tracks the current step and decides which steps may be entered.
// Blocked navigation is an expected outcome and is reported as a boolean,
// never as an error. Gate is not safe for concurrent use; Session serializes
// access to it.
type Gate struct {
	table   StepTable
	current StepKey
}

// NewGate creates a gate positioned on the first step of table
func NewGate(table StepTable) *Gate {
	return &Gate{
		table:   table,
		current: table.First().Key,
	}
}

// Current returns the key of the current step
func (g *Gate) Current() StepKey {
	return g.current
}

// CurrentIndex returns the table index of the current step, or -1 if the
// current key is unknown
func (g *Gate) CurrentIndex() int {
	return g.table.IndexOf(g.current)
}

// CanEnter reports whether every required step before key is in done.
// Optional prior steps never block. A step may always re-enter itself.
// Unknown keys cannot be entered.
func (g *Gate) CanEnter(key StepKey, done CompletionSet) bool {
	if key == g.current {
		return true
	}

	target := g.table.IndexOf(key)
	if target < 0 {
		return false
	}

	for _, step := range g.table.steps[:target] {
		if step.Required && !done.Has(step.Key) {
			return false
		}
	}
	return true
}

// GoTo moves to key if it can be entered. Going to the current step is
// always a successful no-op.
func (g *Gate) GoTo(key StepKey, done CompletionSet) bool {
	if !g.CanEnter(key, done) {
		return false
	}
	g.current = key
	return true
}

// Next moves to the step after the current one. It reports false without
// side effects when already on the last step, when the next step is
// blocked, or when the current key is unknown.
func (g *Gate) Next(done CompletionSet) (StepKey, bool) {
	idx := g.CurrentIndex()
	if idx < 0 {
		return "", false
	}

	next, ok := g.table.At(idx + 1)
	if !ok || !g.GoTo(next.Key, done) {
		return "", false
	}
	return next.Key, true
}

// Previous moves to the step before the current one. Backward navigation is
// never gated; it reports false only on the first step or when the current
// key is unknown.
func (g *Gate) Previous() (StepKey, bool) {
	idx := g.CurrentIndex()
	if idx <= 0 {
		return "", false
	}

	prev, _ := g.table.At(idx - 1)
	g.current = prev.Key
	return prev.Key, true
}
