package querier

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/initia-labs/soldebug/cache"
	"github.com/initia-labs/soldebug/config"
	"github.com/initia-labs/soldebug/sentry_integration"
	"github.com/initia-labs/soldebug/types"
)

// Querier talks to an EVM JSON-RPC node. It is safe for concurrent use.
type Querier struct {
	JsonRpcUrls []string
	Environment string

	client  *fiber.Client
	limiter *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger
	nextID  atomic.Int64

	codeCache     *cache.TTLCache[string, string]
	preimageCache *cache.Cache[common.Hash, string]
	group         singleflight.Group
}

func extractResponse[T any](response []byte) (T, error) {
	var t T
	if err := json.Unmarshal(response, &t); err != nil {
		return t, err
	}
	return t, nil
}

// requestFunc performs one request against a given endpoint URL
type requestFunc[T any] func(ctx context.Context, endpointURL string) (*T, error)

func NewQuerier(cfg *config.Config, logger *slog.Logger) *Querier {
	cc := cfg.GetCacheConfig()
	return &Querier{
		JsonRpcUrls:   cfg.GetChainConfig().JsonRpcUrls,
		Environment:   cfg.GetChainConfig().Environment,
		client:        fiber.AcquireClient(),
		limiter:       semaphore.NewWeighted(int64(cfg.GetMaxConcurrentRequests())),
		timeout:       cfg.GetQueryTimeout(),
		logger:        logger.With("component", "querier"),
		codeCache:     cache.NewTTL[string, string](cc.CodeCacheSize, cc.CodeCacheTTL),
		preimageCache: cache.New[common.Hash, string](cc.PreimageCacheSize),
	}
}

// executeWithEndpointRotation tries each endpoint once, healthy ones first.
// Failures are not retried on the same endpoint; the caller decides whether
// to retry the whole operation.
func executeWithEndpointRotation[T any](ctx context.Context, endpoints []string, requestFn requestFunc[T]) (*T, error) {
	if len(endpoints) == 0 {
		return nil, types.NewConfigError("no JSON-RPC endpoints configured", nil)
	}

	start := findHealthyEndpoint(endpoints)
	var lastErr error
	for i := 0; i < len(endpoints); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		endpoint := endpoints[(start+i)%len(endpoints)]
		res, err := requestFn(ctx, endpoint)
		if err == nil {
			recordEndpointSuccess(endpoint)
			return res, nil
		}

		// a JSON-RPC error is an answer, another node would give the same one
		var rpcErr *types.JSONRPCError
		if errors.As(err, &rpcErr) {
			recordEndpointSuccess(endpoint)
			return nil, err
		}

		recordEndpointFailure(endpoint)
		lastErr = err
	}

	sentry_integration.CaptureCurrentHubException(lastErr, sentry.LevelError)
	return nil, lastErr
}

// call performs one JSON-RPC method and unmarshals its result into T.
func call[T any](ctx context.Context, q *Querier, method string, params ...any) (*T, error) {
	return executeWithEndpointRotation(ctx, q.JsonRpcUrls, func(ctx context.Context, endpointURL string) (*T, error) {
		req := types.JSONRPCRequest{
			JSONRPC: "2.0",
			Method:  method,
			Params:  params,
			ID:      int(q.nextID.Add(1)),
		}
		body, err := Post(ctx, q.client, q.limiter, endpointURL, req, q.timeout)
		if err != nil {
			return nil, err
		}

		res, err := extractResponse[types.JSONRPCResponse](body)
		if err != nil {
			return nil, types.NewNetworkError(endpointURL, err)
		}
		if res.Error != nil {
			return nil, res.Error
		}

		var t T
		if len(res.Result) == 0 || string(res.Result) == "null" {
			return &t, nil
		}
		if err := json.Unmarshal(res.Result, &t); err != nil {
			return nil, types.NewInternalError("malformed "+method+" result", err)
		}
		return &t, nil
	})
}
