// Package session ties the trace engines together for one transaction and
// exposes source-level navigation over them.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/initia-labs/soldebug/ast"
	"github.com/initia-labs/soldebug/calltree"
	"github.com/initia-labs/soldebug/code"
	"github.com/initia-labs/soldebug/config"
	"github.com/initia-labs/soldebug/decoder"
	"github.com/initia-labs/soldebug/sentry_integration"
	"github.com/initia-labs/soldebug/storage"
	"github.com/initia-labs/soldebug/trace"
	"github.com/initia-labs/soldebug/types"
)

// Chain is the node access a session needs once the trace is known.
type Chain interface {
	code.CodeFetcher
	storage.Fetcher
}

// Node can also produce the trace and the transaction itself.
type Node interface {
	Chain
	TraceTransaction(ctx context.Context, txHash string) (*types.TraceTransactionResult, error)
	GetTransaction(ctx context.Context, txHash string) (*types.Transaction, error)
}

// Input is everything needed to debug one transaction offline.
type Input struct {
	Compilation *types.CompilationResult
	Trace       []types.StructLog
	Tx          types.Transaction
	// Sources holds source texts by compilation path; missing ones are
	// read from disk.
	Sources map[string]string
}

// Session is the debugging context of one transaction.
type Session struct {
	logger *slog.Logger

	Trace   *trace.Store
	Code    *code.Resolver
	Storage *storage.Oracle
	Index   *ast.Index
	Decoder *decoder.Decoder
	Tree    *calltree.Tree

	files       map[int]*SourceFile
	filesByPath map[string]*SourceFile

	mu                     sync.Mutex
	step                   int
	location               types.SourceLocation
	breakpoints            map[string][]Breakpoint
	nextBreakpointID       int
	instructionBreakpoints map[uint64]struct{}
}

// New builds every engine over an already fetched trace. chain may be nil
// for transactions whose code is entirely created within the trace.
func New(ctx context.Context, logger *slog.Logger, cfg config.DebuggerConfig, in Input, chain Chain) (*Session, error) {
	start := time.Now()
	logger = logger.With("component", "session")

	span, _ := sentry_integration.StartSentrySpan(ctx, "trace.Load", "Indexing struct logs")
	store := trace.NewStore(logger, cfg.RevertPolicy)
	err := store.Load(in.Trace, in.Tx)
	span.Finish()
	if err != nil {
		return nil, err
	}

	var (
		codeFetcher    code.CodeFetcher
		storageFetcher storage.Fetcher
	)
	if chain != nil {
		codeFetcher = chain
		storageFetcher = chain
	}

	index := ast.NewIndex(in.Compilation)
	dec := decoder.New(logger, index, cfg)
	resolver := code.NewResolver(logger, in.Compilation, store, codeFetcher, blockTag(in.Tx))

	span, buildCtx := sentry_integration.StartSentrySpan(ctx, "calltree.Build", "Building scopes")
	tree, err := calltree.Build(buildCtx, logger, store, resolver, index, dec, cfg.MaxScopeDepth)
	span.Finish()
	if err != nil {
		return nil, err
	}

	s := &Session{
		logger:                 logger,
		Trace:                  store,
		Code:                   resolver,
		Storage:                storage.NewOracle(logger, storageFetcher, in.Tx, cfg.StoragePageSize, cfg.StorageMaxPages),
		Index:                  index,
		Decoder:                dec,
		Tree:                   tree,
		files:                  make(map[int]*SourceFile),
		filesByPath:            make(map[string]*SourceFile),
		location:               types.UnsetSourceLocation(),
		breakpoints:            make(map[string][]Breakpoint),
		nextBreakpointID:       1,
		instructionBreakpoints: make(map[uint64]struct{}),
	}
	s.loadSources(in.Compilation, in.Sources)

	length, _ := store.Length()
	logger.Info("session ready",
		slog.String("tx", in.Tx.Hash.Hex()),
		slog.Int("steps", length),
		slog.Int("scopes", len(tree.Scopes())),
		slog.Duration("elapsed", time.Since(start)))
	return s, nil
}

// Load fetches the transaction and its trace from node, then builds the
// session.
func Load(ctx context.Context, logger *slog.Logger, cfg config.DebuggerConfig, node Node, compilation *types.CompilationResult, sources map[string]string, txHash string) (*Session, error) {
	transaction, ctx := sentry_integration.StartSentryTransaction(ctx, "loadSession", "Fetching and indexing "+txHash)
	defer transaction.Finish()

	var (
		g      errgroup.Group
		result *types.TraceTransactionResult
		tx     *types.Transaction
	)
	g.Go(func() error {
		var err error
		result, err = node.TraceTransaction(ctx, txHash)
		return err
	})
	g.Go(func() error {
		var err error
		tx, err = node.GetTransaction(ctx, txHash)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, types.NewNotFoundError("transaction " + txHash)
	}
	if result == nil || len(result.StructLogs) == 0 {
		return nil, types.NewTraceUnavailableError(txHash, nil)
	}

	return New(ctx, logger, cfg, Input{
		Compilation: compilation,
		Trace:       result.StructLogs,
		Tx:          *tx,
		Sources:     sources,
	}, node)
}

func blockTag(tx types.Transaction) string {
	if tx.BlockNumber == nil {
		return "latest"
	}
	return hexutil.EncodeBig(tx.BlockNumber.ToInt())
}

func (s *Session) loadSources(compilation *types.CompilationResult, texts map[string]string) {
	if compilation == nil {
		return
	}
	paths := make([]string, 0, len(compilation.Sources))
	for p := range compilation.Sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		text, ok := texts[p]
		if !ok {
			raw, err := os.ReadFile(p)
			if err != nil {
				s.logger.Warn("source text unavailable, lines default to 0", slog.String("path", p), slog.Any("error", err))
			}
			text = string(raw)
		}
		f := NewSourceFile(compilation.Sources[p].ID, p, text)
		s.files[f.ID] = f
		s.filesByPath[f.Path] = f
	}
}

// File returns the source with the given compilation id.
func (s *Session) File(id int) (*SourceFile, bool) {
	f, ok := s.files[id]
	return f, ok
}

// Step is the current trace position.
func (s *Session) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Position is the current source position.
type Position struct {
	Step     int                  `json:"step"`
	Path     string               `json:"path"`
	Location types.SourceLocation `json:"location"`
	Range    Range                `json:"range"`
}

func (s *Session) Position() (Position, error) {
	s.mu.Lock()
	step, loc := s.step, s.location
	s.mu.Unlock()

	f, ok := s.files[loc.File]
	if !ok {
		return Position{Step: step, Location: loc}, types.NewNotFoundError(fmt.Sprintf("source file %d", loc.File))
	}
	return Position{Step: step, Path: f.Path, Location: loc, Range: f.Range(loc.Start, loc.Length)}, nil
}

// Instructions returns the disassembly of the code running at the current
// step and the index of the current instruction.
func (s *Session) Instructions(ctx context.Context) ([]string, int, error) {
	step := s.Step()
	address, err := s.Trace.CurrentCalledAddressAt(step)
	if err != nil {
		return nil, -1, err
	}
	instructions, err := s.Code.Instructions(ctx, address)
	if err != nil {
		return nil, -1, err
	}
	idx, err := s.Code.InstructionIndexAt(ctx, address, step)
	if err != nil {
		return instructions, -1, err
	}
	return instructions, idx, nil
}
