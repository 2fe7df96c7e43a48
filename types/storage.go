package types

import "github.com/ethereum/go-ethereum/common"

// StorageEntry is one slot of a debug_storageRangeAt page. Key is nil when
// the node has no preimage for the hashed key.
type StorageEntry struct {
	Key   *common.Hash `json:"key"`
	Value common.Hash  `json:"value"`
}

// StorageMap is keyed by the keccak256 hash of the slot.
type StorageMap map[common.Hash]StorageEntry

// StorageRangeResult is the result of debug_storageRangeAt.
type StorageRangeResult struct {
	Storage StorageMap   `json:"storage"`
	NextKey *common.Hash `json:"nextKey"`
}
