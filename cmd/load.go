package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/initia-labs/soldebug/config"
	"github.com/initia-labs/soldebug/session"
	"github.com/initia-labs/soldebug/types"
	"github.com/initia-labs/soldebug/util/querier"
)

var _ session.Node = (*querier.Querier)(nil)

type loadFlags struct {
	compilation string
	trace       string
	tx          string
	txHash      string
	sourceRoot  string
}

func (f *loadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.compilation, "compilation", "", "solc standard-json output file")
	cmd.Flags().StringVar(&f.trace, "trace", "", "debug_traceTransaction result file (offline)")
	cmd.Flags().StringVar(&f.tx, "tx", "", "eth_getTransactionByHash result file (offline)")
	cmd.Flags().StringVar(&f.txHash, "tx-hash", "", "transaction to fetch from JSON_RPC_URL")
	cmd.Flags().StringVar(&f.sourceRoot, "source-root", ".", "directory the compilation source paths are relative to")
	_ = cmd.MarkFlagRequired("compilation")
}

func (f *loadFlags) validate() error {
	if f.txHash == "" && (f.trace == "" || f.tx == "") {
		return types.NewValidationError("tx-hash", "either --tx-hash or both --trace and --tx are required")
	}
	return nil
}

func readJSON[T any](path string) (*T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &v, nil
}

func readSources(root string, compilation *types.CompilationResult, logger *slog.Logger) map[string]string {
	sources := make(map[string]string, len(compilation.Sources))
	for p := range compilation.Sources {
		raw, err := os.ReadFile(filepath.Join(root, p))
		if err != nil {
			logger.Warn("failed to read source", slog.String("path", p), slog.Any("error", err))
			continue
		}
		sources[p] = string(raw)
	}
	return sources
}

// loadSession builds a session offline from files or, with --tx-hash,
// from the configured node.
func loadSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, f *loadFlags) (*session.Session, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	compilation, err := readJSON[types.CompilationResult](f.compilation)
	if err != nil {
		return nil, err
	}
	sources := readSources(f.sourceRoot, compilation, logger)
	debuggerCfg := *cfg.GetDebuggerConfig()

	var q *querier.Querier
	if cfg.GetChainConfig().HasEndpoints() {
		q = querier.NewQuerier(cfg, logger)
	}

	if f.txHash != "" {
		if err := cfg.GetChainConfig().RequireEndpoints(); err != nil {
			return nil, err
		}
		return session.Load(ctx, logger, debuggerCfg, q, compilation, sources, f.txHash)
	}

	result, err := readJSON[types.TraceTransactionResult](f.trace)
	if err != nil {
		return nil, err
	}
	tx, err := readJSON[types.Transaction](f.tx)
	if err != nil {
		return nil, err
	}
	in := session.Input{
		Compilation: compilation,
		Trace:       result.StructLogs,
		Tx:          *tx,
		Sources:     sources,
	}
	if q == nil {
		return session.New(ctx, logger, debuggerCfg, in, nil)
	}
	return session.New(ctx, logger, debuggerCfg, in, q)
}
