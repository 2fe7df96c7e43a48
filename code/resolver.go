// Package code maps executed program counters back to source locations.
package code

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/initia-labs/soldebug/metrics"
	"github.com/initia-labs/soldebug/trace"
	"github.com/initia-labs/soldebug/types"
	"github.com/initia-labs/soldebug/util"
)

// CodeFetcher returns the runtime code deployed at an address.
type CodeFetcher interface {
	GetCode(ctx context.Context, address, blockNumber string) (string, error)
}

// TraceSource is the part of the trace store the resolver reads.
type TraceSource interface {
	PCAt(step int) (uint64, error)
	ContractCreationCode(token string) (string, error)
}

// Contract is the compiled contract matched against an address.
type Contract struct {
	File             string
	Name             string
	ABI              json.RawMessage
	Creation         bool
	GeneratedSources []types.GeneratedSource
}

type resolved struct {
	program   Program
	contract  *Contract
	sourceMap []types.SourceLocation
}

// Resolver caches, per address, the disassembly and the decoded source map
// of the matching compiled contract.
type Resolver struct {
	logger      *slog.Logger
	compilation *types.CompilationResult
	trace       TraceSource
	fetcher     CodeFetcher
	blockNumber string

	mu    sync.RWMutex
	cache map[string]*resolved
	group singleflight.Group
}

// NewResolver builds a resolver. fetcher may be nil when every address is a
// creation token; blockNumber selects the code version passed to the fetcher.
func NewResolver(logger *slog.Logger, compilation *types.CompilationResult, traceSource TraceSource, fetcher CodeFetcher, blockNumber string) *Resolver {
	return &Resolver{
		logger:      logger.With("component", "code"),
		compilation: compilation,
		trace:       traceSource,
		fetcher:     fetcher,
		blockNumber: blockNumber,
		cache:       make(map[string]*resolved),
	}
}

func (r *Resolver) load(ctx context.Context, address string) (*resolved, error) {
	r.mu.RLock()
	res, ok := r.cache[address]
	r.mu.RUnlock()
	if ok {
		return res, nil
	}

	v, err, shared := r.group.Do(address, func() (any, error) {
		raw, err := r.fetchCode(ctx, address)
		if err != nil {
			return nil, err
		}
		bytes, err := util.HexToBytes(raw)
		if err != nil {
			return nil, types.NewInvalidValueError("code", address, err.Error())
		}

		res := &resolved{program: Disassemble(bytes)}
		if contract, c := r.match(res.program.Code, trace.IsContractCreation(address)); contract != nil {
			res.contract = contract
			res.sourceMap = DecodeSourceMap(c.SourceMap)
		} else {
			r.logger.Debug("no compiled contract matches", slog.String("address", address))
		}

		r.mu.Lock()
		r.cache[address] = res
		r.mu.Unlock()
		return res, nil
	})
	metrics.TrackSharedFetch("program", shared)
	if err != nil {
		return nil, err
	}
	return v.(*resolved), nil
}

func (r *Resolver) fetchCode(ctx context.Context, address string) (string, error) {
	if trace.IsContractCreation(address) {
		return r.trace.ContractCreationCode(address)
	}
	if r.fetcher == nil {
		return "", types.NewConfigError("no code fetcher for "+address, nil)
	}
	return r.fetcher.GetCode(ctx, address, r.blockNumber)
}

// match walks the compiled contracts in a stable order and returns the first
// whose bytecode matches.
func (r *Resolver) match(onChain string, creation bool) (*Contract, *types.Bytecode) {
	if r.compilation == nil {
		return nil, nil
	}
	files := make([]string, 0, len(r.compilation.Contracts))
	for f := range r.compilation.Contracts {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		contracts := r.compilation.Contracts[file]
		names := make([]string, 0, len(contracts))
		for n := range contracts {
			names = append(names, n)
		}
		sort.Strings(names)

		for _, name := range names {
			compiled := contracts[name]
			bc := compiled.EVM.DeployedBytecode
			if creation {
				bc = compiled.EVM.Bytecode
			}
			if !MatchBytecode(onChain, bc.Object, creation) {
				continue
			}
			return &Contract{
				File:             file,
				Name:             name,
				ABI:              compiled.ABI,
				Creation:         creation,
				GeneratedSources: bc.GeneratedSources,
			}, &bc
		}
	}
	return nil, nil
}

// Instructions returns the disassembly of the code at address.
func (r *Resolver) Instructions(ctx context.Context, address string) ([]string, error) {
	res, err := r.load(ctx, address)
	if err != nil {
		return nil, err
	}
	return res.program.Instructions, nil
}

// ContractAt returns the compiled contract matching the code at address.
func (r *Resolver) ContractAt(ctx context.Context, address string) (*Contract, error) {
	res, err := r.load(ctx, address)
	if err != nil {
		return nil, err
	}
	if res.contract == nil {
		return nil, types.NewUnresolvedContractError(address)
	}
	return res.contract, nil
}

// InstructionIndexAt maps the pc of step to its instruction index.
func (r *Resolver) InstructionIndexAt(ctx context.Context, address string, step int) (int, error) {
	pc, err := r.trace.PCAt(step)
	if err != nil {
		return -1, err
	}
	res, err := r.load(ctx, address)
	if err != nil {
		return -1, err
	}
	idx, ok := res.program.IndexByOffset[pc]
	if !ok {
		return -1, types.NewInvalidProgramCounterError(address, pc, step)
	}
	return idx, nil
}

func (r *Resolver) SourceLocationByInstruction(ctx context.Context, address string, idx int) (types.SourceLocation, error) {
	res, err := r.load(ctx, address)
	if err != nil {
		return types.SourceLocation{}, err
	}
	if res.contract == nil {
		return types.SourceLocation{}, types.NewUnresolvedContractError(address)
	}
	if idx < 0 || idx >= len(res.sourceMap) {
		return types.SourceLocation{}, types.NewIndexOutOfRangeError(idx, len(res.sourceMap))
	}
	return res.sourceMap[idx], nil
}

// SourceLocationAt returns the raw source map entry of the instruction executed at step.
func (r *Resolver) SourceLocationAt(ctx context.Context, address string, step int) (types.SourceLocation, error) {
	idx, err := r.InstructionIndexAt(ctx, address, step)
	if err != nil {
		return types.SourceLocation{}, err
	}
	return r.SourceLocationByInstruction(ctx, address, idx)
}

// ValidSourceLocationAt walks back from step to the closest location that
// points into a user source rather than compiler generated code.
func (r *Resolver) ValidSourceLocationAt(ctx context.Context, address string, step int) (types.SourceLocation, error) {
	numSources := 0
	if r.compilation != nil {
		numSources = len(r.compilation.Sources)
	}

	location := types.UnsetSourceLocation()
	for ; step >= 0 && (location.File == -1 || location.File > numSources-1); step-- {
		if err := ctx.Err(); err != nil {
			return location, err
		}
		cur, err := r.SourceLocationAt(ctx, address, step)
		if err != nil {
			return location, types.NewUnresolvedSourceLocationError(step, err)
		}
		location = cur
	}
	return location, nil
}
