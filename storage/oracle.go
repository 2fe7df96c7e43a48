// Package storage serves contract storage as it was at a given trace step.
package storage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/initia-labs/soldebug/metrics"
	"github.com/initia-labs/soldebug/trace"
	"github.com/initia-labs/soldebug/types"
)

// RangeFetcher pages the storage of an address as it was before a transaction.
type RangeFetcher interface {
	StorageRangeAt(ctx context.Context, blockHash common.Hash, txIndex uint64, address string, startKey common.Hash, maxSize int) (*types.StorageRangeResult, error)
}

// PreimageFetcher resolves the preimage of a keccak256 hash.
type PreimageFetcher interface {
	Preimage(ctx context.Context, hash common.Hash) (string, error)
}

type Fetcher interface {
	RangeFetcher
	PreimageFetcher
}

type addressStorage struct {
	storage  types.StorageMap
	fetched  map[common.Hash]bool
	complete bool
}

func (s *addressStorage) has(slotKey common.Hash) bool {
	if _, ok := s.storage[slotKey]; ok {
		return true
	}
	return s.fetched[slotKey]
}

// Oracle caches the storage snapshots fetched for one transaction. One
// instance serves a whole debugging session.
type Oracle struct {
	logger   *slog.Logger
	fetcher  Fetcher
	tx       types.Transaction
	pageSize int
	maxPages int

	mu        sync.Mutex
	byAddress map[string]*addressStorage
	preimages map[string]MappingKeys
	group     singleflight.Group
}

// NewOracle pages storage pageSize entries at a time. A scan from the zero
// key follows the node's cursor for at most maxPages pages.
func NewOracle(logger *slog.Logger, fetcher Fetcher, tx types.Transaction, pageSize, maxPages int) *Oracle {
	if maxPages < 1 {
		maxPages = 1
	}
	return &Oracle{
		logger:    logger.With("component", "storage"),
		fetcher:   fetcher,
		tx:        tx,
		pageSize:  pageSize,
		maxPages:  maxPages,
		byAddress: make(map[string]*addressStorage),
		preimages: make(map[string]MappingKeys),
	}
}

// StorageRange returns the known storage of address, scanning from the zero
// key when needed.
func (o *Oracle) StorageRange(ctx context.Context, step int, address string) (types.StorageMap, error) {
	return o.storageRange(ctx, common.Hash{}, address)
}

// StorageSlot returns the entry stored under hashedSlot, zero when unset.
func (o *Oracle) StorageSlot(ctx context.Context, hashedSlot common.Hash, step int, address string) (*types.StorageEntry, error) {
	storage, err := o.storageRange(ctx, hashedSlot, address)
	if err != nil {
		return nil, err
	}
	entry, ok := storage[hashedSlot]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// IsComplete reports whether a scan from the zero key returned every slot.
func (o *Oracle) IsComplete(address string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.byAddress[address]
	return ok && s.complete
}

// InitialPreimagesMappings decodes the mapping keys found in the base
// snapshot of address. The result is computed once per address.
func (o *Oracle) InitialPreimagesMappings(ctx context.Context, step int, address string, corrections []Correction) (MappingKeys, error) {
	o.mu.Lock()
	cached, ok := o.preimages[address]
	o.mu.Unlock()
	if ok {
		return cached, nil
	}

	storage, err := o.StorageRange(ctx, step, address)
	if err != nil {
		return nil, err
	}
	mappings := DecodeMappingsKeys(ctx, o.fetcher, storage, corrections, o.logger)

	o.mu.Lock()
	o.preimages[address] = mappings
	o.mu.Unlock()
	return mappings, nil
}

func (o *Oracle) storageRange(ctx context.Context, slotKey common.Hash, address string) (types.StorageMap, error) {
	o.mu.Lock()
	if s, ok := o.byAddress[address]; ok {
		if s.has(slotKey) {
			out := copyStorage(s.storage)
			o.mu.Unlock()
			metrics.TrackStorageLookup(true)
			return out, nil
		}
	}
	o.mu.Unlock()
	metrics.TrackStorageLookup(false)

	_, err, shared := o.group.Do(address+slotKey.Hex(), func() (any, error) {
		storage, complete, err := o.scan(ctx, address, slotKey)
		if err != nil {
			return nil, err
		}
		// the zero slot is never synthesized, it could hide a page
		if _, ok := storage[slotKey]; !ok && slotKey != (common.Hash{}) {
			storage[slotKey] = types.StorageEntry{}
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		s, ok := o.byAddress[address]
		if !ok {
			s = &addressStorage{storage: types.StorageMap{}, fetched: map[common.Hash]bool{}}
			o.byAddress[address] = s
		}
		for k, v := range storage {
			s.storage[k] = v
		}
		s.fetched[slotKey] = true
		if complete {
			s.complete = true
		}
		return nil, nil
	})
	metrics.TrackSharedFetch("storage", shared)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return copyStorage(o.byAddress[address].storage), nil
}

// scan fetches the page starting at slotKey. From the zero key it follows
// nextKey and reports whether the last page was reached.
func (o *Oracle) scan(ctx context.Context, address string, slotKey common.Hash) (types.StorageMap, bool, error) {
	fromZero := slotKey == (common.Hash{})
	storage := types.StorageMap{}
	start := slotKey
	for page := 1; ; page++ {
		result, err := o.fetchRange(ctx, address, start)
		if err != nil {
			return nil, false, err
		}
		for k, v := range result.Storage {
			storage[k] = v
		}
		if result.NextKey == nil {
			return storage, fromZero, nil
		}
		if !fromZero || page >= o.maxPages {
			o.logger.Debug("storage scan stopped early", slog.String("address", address), slog.Int("pages", page))
			return storage, false, nil
		}
		start = *result.NextKey
	}
}

func (o *Oracle) fetchRange(ctx context.Context, address string, start common.Hash) (*types.StorageRangeResult, error) {
	if trace.IsContractCreation(address) {
		// not deployed yet, nothing on chain
		return &types.StorageRangeResult{}, nil
	}
	if o.fetcher == nil {
		return nil, types.NewStorageFetchFailedError(address, types.NewConfigError("no storage fetcher", nil))
	}
	res, err := o.fetcher.StorageRangeAt(ctx, o.tx.BlockHash, uint64(o.tx.TransactionIndex), address, start, o.pageSize)
	if err != nil {
		o.logger.Warn("storage range fetch failed", slog.String("address", address), slog.Any("error", err))
		return nil, types.NewStorageFetchFailedError(address, err)
	}
	return res, nil
}

func copyStorage(s types.StorageMap) types.StorageMap {
	out := make(types.StorageMap, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
