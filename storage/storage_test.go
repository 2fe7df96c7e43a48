package storage_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/initia-labs/soldebug/log"
	"github.com/initia-labs/soldebug/storage"
	"github.com/initia-labs/soldebug/trace"
	"github.com/initia-labs/soldebug/types"
)

const contract = "0x00000000000000000000000000000000000000aa"

type fakeFetcher struct {
	mu        sync.Mutex
	pages     map[string]types.StorageMap
	preimages map[common.Hash]string
	// chunks, when set, serves pages by start key
	chunks map[common.Hash]types.StorageRangeResult
	calls  int
}

func (f *fakeFetcher) StorageRangeAt(_ context.Context, _ common.Hash, _ uint64, address string, start common.Hash, _ int) (*types.StorageRangeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.chunks != nil {
		page := f.chunks[start]
		return &page, nil
	}
	out := types.StorageMap{}
	for k, v := range f.pages[address] {
		out[k] = v
	}
	return &types.StorageRangeResult{Storage: out}, nil
}

func (f *fakeFetcher) Preimage(_ context.Context, hash common.Hash) (string, error) {
	if p, ok := f.preimages[hash]; ok {
		return p, nil
	}
	return "", types.NewPreimageNotFoundError(hash.Hex())
}

type fakeWrites types.StorageMap

func (w fakeWrites) AccumulateStorageChanges(_ int, _ string, base types.StorageMap) types.StorageMap {
	for k, v := range w {
		base[k] = v
	}
	return base
}

func entry(key, value common.Hash) (common.Hash, types.StorageEntry) {
	k := key
	return crypto.Keccak256Hash(key.Bytes()), types.StorageEntry{Key: &k, Value: value}
}

func newFetcher() *fakeFetcher {
	hashed, e := entry(common.BigToHash(common.Big0), common.BigToHash(common.Big3))
	return &fakeFetcher{
		pages:     map[string]types.StorageMap{contract: {hashed: e}},
		preimages: map[common.Hash]string{},
	}
}

func TestStorageRangeCachesPages(t *testing.T) {
	f := newFetcher()
	o := storage.NewOracle(log.Discard(), f, types.Transaction{}, 100, 10)

	first, err := o.StorageRange(context.Background(), 0, contract)
	require.NoError(t, err)
	assert.Len(t, first, 1)
	assert.True(t, o.IsComplete(contract))

	_, err = o.StorageRange(context.Background(), 3, contract)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
}

func twoPageFetcher() (*fakeFetcher, common.Hash, common.Hash) {
	first, e1 := entry(common.BigToHash(common.Big0), common.BigToHash(common.Big1))
	second, e2 := entry(common.BigToHash(common.Big1), common.BigToHash(common.Big2))
	return &fakeFetcher{
		preimages: map[common.Hash]string{},
		chunks: map[common.Hash]types.StorageRangeResult{
			{}:     {Storage: types.StorageMap{first: e1}, NextKey: &second},
			second: {Storage: types.StorageMap{second: e2}},
		},
	}, first, second
}

func TestStorageRangeFollowsNextKey(t *testing.T) {
	f, first, second := twoPageFetcher()
	o := storage.NewOracle(log.Discard(), f, types.Transaction{}, 1, 10)

	got, err := o.StorageRange(context.Background(), 0, contract)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, first)
	assert.Contains(t, got, second)
	assert.True(t, o.IsComplete(contract))
	assert.Equal(t, 2, f.calls)
}

func TestStorageRangeStopsAtMaxPages(t *testing.T) {
	f, first, _ := twoPageFetcher()
	o := storage.NewOracle(log.Discard(), f, types.Transaction{}, 1, 1)

	got, err := o.StorageRange(context.Background(), 0, contract)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, first)
	assert.False(t, o.IsComplete(contract))
	assert.Equal(t, 1, f.calls)
}

func TestStorageSlotMissingIsZero(t *testing.T) {
	f := newFetcher()
	o := storage.NewOracle(log.Discard(), f, types.Transaction{}, 100, 10)

	missing := crypto.Keccak256Hash(common.BigToHash(common.Big2).Bytes())
	e, err := o.StorageSlot(context.Background(), missing, 0, contract)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, common.Hash{}, e.Value)
	assert.Nil(t, e.Key)

	// the synthesized zero entry is cached
	_, err = o.StorageSlot(context.Background(), missing, 0, contract)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
}

func TestStorageRangeOfCreatedContract(t *testing.T) {
	f := newFetcher()
	o := storage.NewOracle(log.Discard(), f, types.Transaction{}, 100, 10)

	got, err := o.StorageRange(context.Background(), 4, trace.ContractCreationToken(1))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, f.calls)
}

func TestDecodeMappingsKeys(t *testing.T) {
	key := common.BigToHash(common.Big1)
	slot := common.Hash{}
	preimage := append(key.Bytes(), slot.Bytes()...)
	location := crypto.Keccak256Hash(preimage)

	f := newFetcher()
	f.preimages[location] = "0x" + common.Bytes2Hex(preimage)

	hashed, e := entry(location, common.BigToHash(common.Big2))
	got := storage.DecodeMappingsKeys(context.Background(), f, types.StorageMap{hashed: e}, nil, log.Discard())

	mapSlot := strings.Repeat("0", 64)
	require.Contains(t, got, mapSlot)
	assert.Equal(t, "0x"+common.Bytes2Hex(preimage), got[mapSlot][key.Hex()])
}

func TestDecodeMappingsKeysWithCorrection(t *testing.T) {
	key := common.BigToHash(common.Big2)
	slot := common.BigToHash(common.Big1)
	preimage := append(key.Bytes(), slot.Bytes()...)
	base := crypto.Keccak256Hash(preimage)
	// the second struct member lives one slot after the base location
	member := common.BigToHash(new(common.Hash).Big().Add(base.Big(), common.Big1))

	f := newFetcher()
	f.preimages[base] = "0x" + common.Bytes2Hex(preimage)

	hashed, e := entry(member, common.BigToHash(common.Big3))
	got := storage.DecodeMappingsKeys(context.Background(), f, types.StorageMap{hashed: e},
		[]storage.Correction{{Offset: 0, Slot: 0}, {Offset: 0, Slot: 1}}, log.Discard())

	mapSlot := strings.TrimPrefix(slot.Hex(), "0x")
	require.Contains(t, got, mapSlot)
	assert.Contains(t, got[mapSlot], key.Hex())
}

func TestViewOverlaysWrites(t *testing.T) {
	f := newFetcher()
	o := storage.NewOracle(log.Discard(), f, types.Transaction{}, 100, 10)

	hashed, e := entry(common.BigToHash(common.Big0), common.BigToHash(common.Big1))
	v := storage.NewView(o, fakeWrites{hashed: e}, 5, contract)

	value, err := v.StorageSlot(context.Background(), common.Hash{})
	require.NoError(t, err)
	assert.Equal(t, common.BigToHash(common.Big1), value)
	assert.Zero(t, f.calls)

	rng, err := v.StorageRange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.BigToHash(common.Big1), rng[hashed].Value)
}

func TestMappingKeysMerge(t *testing.T) {
	a := storage.MappingKeys{"s": {"0x01": "p1"}}
	b := storage.MappingKeys{"s": {"0x02": "p2"}, "t": {"0x03": "p3"}}

	got := a.Merge(b)
	assert.Len(t, got["s"], 2)
	assert.Len(t, got["t"], 1)
	assert.Len(t, a["s"], 1)
}
