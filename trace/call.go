package trace

import "sort"

// Call is one call-stack frame. Return is -1 while the frame never closed.
type Call struct {
	Op        string
	Address   string
	CallStack []string
	Calls     []*Call
	Start     int
	Return    int
	Reverted  bool
	Parent    *Call `json:"-"`
}

func newCall(op, address string, callStack []string, start int, parent *Call) *Call {
	return &Call{
		Op:        op,
		Address:   address,
		CallStack: callStack,
		Start:     start,
		Return:    -1,
		Parent:    parent,
	}
}

func (c *Call) Closed() bool {
	return c.Return >= 0
}

// Contains reports whether step lies within the frame. A frame that never
// closed runs to the end of the trace.
func (c *Call) Contains(step int) bool {
	return step >= c.Start && (!c.Closed() || step <= c.Return)
}

// ChildStarts lists the start steps of the direct sub-calls in order.
func (c *Call) ChildStarts() []int {
	starts := make([]int, len(c.Calls))
	for i, sub := range c.Calls {
		starts[i] = sub.Start
	}
	return starts
}

// buildCallPath lists the calls from root to the innermost one containing step.
func buildCallPath(step int, root *Call) []*Call {
	path := []*Call{root}
	current := root
	for {
		// children are ordered by start and do not overlap
		i := sort.Search(len(current.Calls), func(i int) bool { return current.Calls[i].Start > step }) - 1
		if i < 0 || !current.Calls[i].Contains(step) {
			return path
		}
		current = current.Calls[i]
		path = append(path, current)
	}
}

func findCall(step int, root *Call) *Call {
	path := buildCallPath(step, root)
	return path[len(path)-1]
}
