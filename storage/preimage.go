package storage

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/initia-labs/soldebug/types"
)

// Correction is the slot offset of a struct member. Writes to a member of a
// struct stored in a mapping land at keccak256(key . slot) + member slot.
type Correction struct {
	Offset int
	Slot   uint64
}

// MappingKeys maps a mapping slot (64 hex chars) to its known keys
// (0x-prefixed hex) and their full preimage.
type MappingKeys map[string]map[string]string

// Merge returns m overlaid with other.
func (m MappingKeys) Merge(other MappingKeys) MappingKeys {
	out := make(MappingKeys, len(m)+len(other))
	for _, src := range []MappingKeys{m, other} {
		for slot, keys := range src {
			if out[slot] == nil {
				out[slot] = make(map[string]string, len(keys))
			}
			for k, v := range keys {
				out[slot][k] = v
			}
		}
	}
	return out
}

// DecodeMappingsKeys looks up the preimage of every storage key, trying each
// correction in order. Keys without a preimage are left out.
func DecodeMappingsKeys(ctx context.Context, fetcher PreimageFetcher, storage types.StorageMap, corrections []Correction, logger *slog.Logger) MappingKeys {
	ret := make(MappingKeys)
	if fetcher == nil {
		return ret
	}
	if len(corrections) == 0 {
		corrections = []Correction{{Offset: 0, Slot: 0}}
	}

	for _, entry := range storage {
		if entry.Key == nil {
			continue
		}
		preimage := ""
		for _, c := range corrections {
			if ctx.Err() != nil {
				return ret
			}
			key := new(uint256.Int).SetBytes(entry.Key.Bytes())
			corrected := new(uint256.Int).Sub(key, uint256.NewInt(c.Slot))
			p, err := fetcher.Preimage(ctx, common.Hash(corrected.Bytes32()))
			if err == nil && p != "" {
				preimage = p
				break
			}
			if err != nil && logger != nil {
				logger.Debug("no preimage", slog.String("key", entry.Key.Hex()), slog.Any("error", err))
			}
		}
		if preimage == "" {
			continue
		}

		preimage = strings.ToLower(strings.TrimPrefix(preimage, "0x"))
		slotOffset := len(preimage) - 64
		if slotOffset < 0 {
			continue
		}
		mappingSlot := preimage[slotOffset:]
		mappingKey := "0x" + preimage[:slotOffset]
		if ret[mappingSlot] == nil {
			ret[mappingSlot] = make(map[string]string)
		}
		ret[mappingSlot][mappingKey] = "0x" + preimage
	}
	return ret
}
