package querier

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/initia-labs/soldebug/metrics"
	"github.com/initia-labs/soldebug/types"
)

// TraceTransaction fetches the struct log of a mined transaction with memory
// captured and per-step storage left out.
func (q *Querier) TraceTransaction(ctx context.Context, txHash string) (*types.TraceTransactionResult, error) {
	opts := types.TraceTransactionOptions{
		DisableStorage:   true,
		EnableMemory:     true,
		EnableReturnData: true,
	}
	res, err := call[types.TraceTransactionResult](ctx, q, "debug_traceTransaction", txHash, opts)
	if err != nil {
		return nil, types.NewTraceUnavailableError(txHash, err)
	}
	if len(res.StructLogs) == 0 {
		return nil, types.NewTraceUnavailableError(txHash, nil)
	}
	return res, nil
}

func (q *Querier) GetTransaction(ctx context.Context, txHash string) (*types.Transaction, error) {
	res, err := call[*types.Transaction](ctx, q, "eth_getTransactionByHash", txHash)
	if err != nil {
		return nil, err
	}
	if *res == nil {
		return nil, types.NewNotFoundError(fmt.Sprintf("transaction %s", txHash))
	}
	return *res, nil
}

// GetCode returns the runtime code of address at blockNumber ("latest" when empty).
func (q *Querier) GetCode(ctx context.Context, address, blockNumber string) (string, error) {
	if blockNumber == "" {
		blockNumber = "latest"
	}
	address = types.NormalizeAddress(address)
	key := address + "@" + blockNumber
	if code, ok := q.codeCache.Get(key); ok {
		return code, nil
	}

	v, err, shared := q.group.Do("code:"+key, func() (any, error) {
		res, err := call[hexutil.Bytes](ctx, q, "eth_getCode", address, blockNumber)
		if err != nil {
			return "", err
		}
		code := hexutil.Encode(*res)
		q.codeCache.Set(key, code)
		return code, nil
	})
	metrics.TrackSharedFetch("code", shared)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// StorageRangeAt pages the storage of address as it was before transaction
// txIndex of blockHash executed.
func (q *Querier) StorageRangeAt(ctx context.Context, blockHash common.Hash, txIndex uint64, address string, startKey common.Hash, maxSize int) (*types.StorageRangeResult, error) {
	res, err := call[types.StorageRangeResult](ctx, q, "debug_storageRangeAt", blockHash, txIndex, address, startKey, maxSize)
	if err != nil {
		return nil, types.NewStorageFetchFailedError(address, err)
	}
	if res.Storage == nil {
		res.Storage = types.StorageMap{}
	}
	return res, nil
}

// Preimage returns the 0x-prefixed preimage of a keccak256 hash.
func (q *Querier) Preimage(ctx context.Context, hash common.Hash) (string, error) {
	if preimage, ok := q.preimageCache.Get(hash); ok {
		return preimage, nil
	}

	v, err, shared := q.group.Do("preimage:"+hash.Hex(), func() (any, error) {
		res, err := call[hexutil.Bytes](ctx, q, "debug_preimage", hash)
		if err != nil {
			return "", err
		}
		if len(*res) == 0 {
			return "", types.NewPreimageNotFoundError(hash.Hex())
		}
		preimage := strings.ToLower(hexutil.Encode(*res))
		q.preimageCache.Set(hash, preimage)
		return preimage, nil
	})
	metrics.TrackSharedFetch("preimage", shared)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
