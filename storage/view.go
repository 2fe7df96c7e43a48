package storage

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/initia-labs/soldebug/trace"
	"github.com/initia-labs/soldebug/types"
)

// View is the storage of one address as of one trace step: the base
// snapshot overlaid with the writes recorded up to that step.
type View struct {
	oracle  *Oracle
	step    int
	address string
	changes types.StorageMap

	mu              sync.Mutex
	initialMappings MappingKeys
	currentMappings MappingKeys
}

// WriteLog is the source of in-trace storage writes.
type WriteLog interface {
	AccumulateStorageChanges(step int, address string, base types.StorageMap) types.StorageMap
}

func NewView(oracle *Oracle, writes WriteLog, step int, address string) *View {
	return &View{
		oracle:  oracle,
		step:    step,
		address: address,
		changes: writes.AccumulateStorageChanges(step, address, types.StorageMap{}),
	}
}

func (v *View) Step() int {
	return v.step
}

func (v *View) Address() string {
	return v.address
}

// StorageRange returns the base page with the in-trace writes applied.
func (v *View) StorageRange(ctx context.Context) (types.StorageMap, error) {
	base, err := v.oracle.StorageRange(ctx, v.step, v.address)
	if err != nil {
		return nil, err
	}
	for k, e := range v.changes {
		base[k] = e
	}
	return base, nil
}

// StorageSlot returns the 32-byte value of the raw (unhashed) slot.
func (v *View) StorageSlot(ctx context.Context, slot common.Hash) (common.Hash, error) {
	hashed := crypto.Keccak256Hash(slot.Bytes())
	if e, ok := v.changes[hashed]; ok {
		return e.Value, nil
	}
	entry, err := v.oracle.StorageSlot(ctx, hashed, v.step, v.address)
	if err != nil {
		return common.Hash{}, err
	}
	if entry == nil {
		return common.Hash{}, nil
	}
	return entry.Value, nil
}

func (v *View) IsComplete() bool {
	return v.oracle.IsComplete(v.address)
}

// InitialMappingsLocation returns the mapping keys of the base snapshot.
func (v *View) InitialMappingsLocation(ctx context.Context, corrections []Correction) (MappingKeys, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.initialMappings == nil {
		m, err := v.oracle.InitialPreimagesMappings(ctx, v.step, v.address, corrections)
		if err != nil {
			return nil, err
		}
		v.initialMappings = m
	}
	return v.initialMappings, nil
}

// MappingsLocation returns the mapping keys written during the transaction.
func (v *View) MappingsLocation(ctx context.Context, corrections []Correction) (MappingKeys, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.currentMappings == nil {
		v.currentMappings = DecodeMappingsKeys(ctx, v.oracle.fetcher, v.changes, corrections, v.oracle.logger)
	}
	return v.currentMappings, nil
}

var _ WriteLog = (*trace.Store)(nil)
