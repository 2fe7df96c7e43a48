// Package calltree rebuilds the tree of external calls and internal
// function activations of a trace, with the variables bound in each.
package calltree

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/initia-labs/soldebug/ast"
	"github.com/initia-labs/soldebug/code"
	"github.com/initia-labs/soldebug/decoder"
	"github.com/initia-labs/soldebug/metrics"
	"github.com/initia-labs/soldebug/sentry_integration"
	"github.com/initia-labs/soldebug/trace"
	"github.com/initia-labs/soldebug/types"
	"github.com/initia-labs/soldebug/util"
)

// TraceReader is the part of the trace store the builder walks.
type TraceReader interface {
	Length() (int, error)
	StepAt(step int) (types.StructLog, error)
	CurrentCalledAddressAt(step int) (string, error)
}

// LocationResolver maps steps to source locations and contracts.
type LocationResolver interface {
	SourceLocationAt(ctx context.Context, address string, step int) (types.SourceLocation, error)
	ValidSourceLocationAt(ctx context.Context, address string, step int) (types.SourceLocation, error)
	ContractAt(ctx context.Context, address string) (*code.Contract, error)
}

// TypeParser resolves declaration type strings.
type TypeParser interface {
	Parse(typeString, contractName string, location decoder.Location) (*decoder.Descriptor, error)
}

var (
	_ TraceReader      = (*trace.Store)(nil)
	_ LocationResolver = (*code.Resolver)(nil)
	_ TypeParser       = (*decoder.Decoder)(nil)
)

// Tree is the immutable result of a build.
type Tree struct {
	logger   *slog.Logger
	trace    TraceReader
	resolver LocationResolver
	index    *ast.Index
	parser   TypeParser
	maxDepth int

	scopes            map[string]*Scope
	scopeStarts       map[int]Path
	starts            []int
	functionCallStack []int
	functionsByScope  map[string]*FunctionEntry
	reducedTrace      []int
}

type frame struct {
	path     Path
	step     int
	subScope int
	external bool
	current  types.SourceLocation
	previous types.SourceLocation
}

// Build walks the whole trace once. It fails when a visited step has no
// source location or when scopes nest deeper than maxDepth.
func Build(ctx context.Context, logger *slog.Logger, tr TraceReader, resolver LocationResolver, index *ast.Index, parser TypeParser, maxDepth int) (*Tree, error) {
	start := time.Now()
	t := &Tree{
		logger:           logger.With("component", "calltree"),
		trace:            tr,
		resolver:         resolver,
		index:            index,
		parser:           parser,
		maxDepth:         maxDepth,
		scopes:           make(map[string]*Scope),
		scopeStarts:      make(map[int]Path),
		functionsByScope: make(map[string]*FunctionEntry),
	}
	if t.maxDepth <= 0 {
		t.maxDepth = 1000
	}

	length, err := tr.Length()
	if err != nil {
		return nil, err
	}
	if err := t.build(ctx, length); err != nil {
		step := -1
		var se *types.StandardError
		if errors.As(err, &se) {
			if s, found := se.Details["step"].(int); found {
				step = s
			}
		}
		address, _ := tr.CurrentCalledAddressAt(max(step, 0))
		t.logger.Error("call tree build failed", slog.Int("step", step), slog.Any("error", err))
		metrics.TrackStandardError("calltree", err)
		sentry_integration.CaptureStepException(err, step, address)
		return nil, err
	}
	t.reducedTrace = append(t.reducedTrace, length-1)

	for s := range t.scopeStarts {
		t.starts = append(t.starts, s)
	}
	sort.Ints(t.starts)

	dm := metrics.GetMetrics().Debugger
	dm.CallTreeBuildDuration.Observe(time.Since(start).Seconds())
	dm.ScopesBuiltTotal.Add(float64(len(t.scopes)))
	t.logger.Debug("call tree built",
		slog.Int("steps", length),
		slog.Int("scopes", len(t.scopes)),
		slog.Duration("elapsed", time.Since(start)))
	return t, nil
}

func (t *Tree) openScope(path Path, step int, creation bool) {
	t.scopeStarts[step] = path
	t.scopes[path.String()] = newScope(path, step, creation)
}

func (t *Tree) build(ctx context.Context, length int) error {
	address, err := t.trace.CurrentCalledAddressAt(0)
	if err != nil {
		return err
	}
	root := &frame{path: Path{}, step: 0, subScope: 1, external: true, current: types.UnsetSourceLocation(), previous: types.UnsetSourceLocation()}
	t.openScope(root.path, 0, trace.IsContractCreation(address))
	stack := []*frame{root}

	// resume hands control back to the parent at the given step
	resume := func(at int) {
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			parent.step = at
			parent.subScope++
		}
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if f.step >= length {
			resume(f.step)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		loc, err := t.ExtractSourceLocation(ctx, f.step)
		if err != nil {
			return err
		}
		// a location is new unless it encloses the tracked one
		newLocation := false
		if !loc.Contains(f.current) {
			t.reducedTrace = append(t.reducedTrace, f.step)
			f.current = loc
			newLocation = true
		}

		step, err := t.trace.StepAt(f.step)
		if err != nil {
			return err
		}
		isCall := trace.IsCallInstruction(step) && !t.isPrecompileCall(f.step, length)
		scope := t.scopes[f.path.String()]

		switch {
		case isCall || loc.Jump == types.JumpIn:
			if len(stack) >= t.maxDepth {
				return types.NewRecursionTooDeepError(t.maxDepth, f.step)
			}
			child := &frame{
				path:     f.path.Child(f.subScope),
				step:     f.step + 1,
				subScope: 1,
				external: isCall,
				current:  types.UnsetSourceLocation(),
				previous: types.UnsetSourceLocation(),
			}
			t.openScope(child.path, child.step, trace.IsCreateInstruction(step))
			stack = append(stack, child)

		case (f.external && t.depthChanges(f.step, length)) || (!f.external && loc.Jump == types.JumpOut):
			scope.LastStep = f.step
			resume(f.step + 1)

		default:
			t.includeVariableDeclaration(ctx, f, scope, step, loc, newLocation)
			f.previous = loc
			f.step++
		}
	}
	return nil
}

func (t *Tree) depthChanges(step, length int) bool {
	if step+1 >= length {
		return false
	}
	cur, err := t.trace.StepAt(step)
	if err != nil {
		return false
	}
	next, err := t.trace.StepAt(step + 1)
	if err != nil {
		return false
	}
	return cur.Depth != next.Depth
}

func (t *Tree) isPrecompileCall(step, length int) bool {
	if step+1 >= length {
		return false
	}
	next, err := t.trace.StepAt(step + 1)
	if err != nil {
		return false
	}
	cur, _ := t.trace.StepAt(step)
	return next.Depth == cur.Depth && len(next.Stack) != 0
}

// ExtractSourceLocation resolves the source location of a step.
func (t *Tree) ExtractSourceLocation(ctx context.Context, step int) (types.SourceLocation, error) {
	address, err := t.trace.CurrentCalledAddressAt(step)
	if err != nil {
		return types.SourceLocation{}, types.NewUnresolvedSourceLocationError(step, err)
	}
	loc, err := t.resolver.SourceLocationAt(ctx, address, step)
	if err != nil {
		return types.SourceLocation{}, types.NewUnresolvedSourceLocationError(step, err)
	}
	return loc, nil
}

// ExtractValidSourceLocation resolves the closest location of a step that
// points into a known source file.
func (t *Tree) ExtractValidSourceLocation(ctx context.Context, step int) (types.SourceLocation, error) {
	address, err := t.trace.CurrentCalledAddressAt(step)
	if err != nil {
		return types.SourceLocation{}, types.NewUnresolvedSourceLocationError(step, err)
	}
	return t.resolver.ValidSourceLocationAt(ctx, address, step)
}

// FindScope returns the innermost scope active at step.
func (t *Tree) FindScope(step int) (*Scope, bool) {
	i := util.FindLowerBound(step, t.starts)
	if i < 0 {
		return nil, false
	}
	scope := t.scopes[t.scopeStarts[t.starts[i]].String()]
	for scope.Closed() && scope.LastStep < step && scope.FirstStep > 0 {
		parent, ok := scope.ID.Parent()
		if !ok {
			break
		}
		scope = t.scopes[parent.String()]
	}
	return scope, true
}

// RetrieveFunctionsStack lists the functions entered from the innermost
// scope at step up to the root.
func (t *Tree) RetrieveFunctionsStack(step int) ([]FunctionEntry, error) {
	scope, ok := t.FindScope(step)
	if !ok {
		return nil, nil
	}
	var out []FunctionEntry
	id := scope.ID
	for i := 0; ; i++ {
		if i > t.maxDepth {
			return nil, types.NewRecursionTooDeepError(t.maxDepth, step)
		}
		if fn, ok := t.functionsByScope[id.String()]; ok {
			out = append(out, *fn)
		}
		parent, ok := id.Parent()
		if !ok {
			break
		}
		id = parent
	}
	return out, nil
}

// Scopes returns every scope ordered by first step.
func (t *Tree) Scopes() []*Scope {
	out := make([]*Scope, 0, len(t.scopes))
	for _, s := range t.scopes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstStep != out[j].FirstStep {
			return out[i].FirstStep < out[j].FirstStep
		}
		return out[i].ID.Compare(out[j].ID) < 0
	})
	return out
}

func (t *Tree) Scope(id Path) (*Scope, bool) {
	s, ok := t.scopes[id.String()]
	return s, ok
}

// ReducedTrace lists the steps that start a new source location, plus the
// last step.
func (t *Tree) ReducedTrace() []int {
	return append([]int(nil), t.reducedTrace...)
}

// FunctionCallStack lists the steps at which a function body was entered.
func (t *Tree) FunctionCallStack() []int {
	return append([]int(nil), t.functionCallStack...)
}
