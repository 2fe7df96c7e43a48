// Package decoder turns raw storage, memory, stack and call-data words into
// source-level Solidity values.
package decoder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/initia-labs/soldebug/ast"
	"github.com/initia-labs/soldebug/config"
	"github.com/initia-labs/soldebug/metrics"
	"github.com/initia-labs/soldebug/storage"
)

// StorageReader is the storage of one contract as of one step.
type StorageReader interface {
	Address() string
	StorageSlot(ctx context.Context, slot common.Hash) (common.Hash, error)
	InitialMappingsLocation(ctx context.Context, corrections []storage.Correction) (storage.MappingKeys, error)
	MappingsLocation(ctx context.Context, corrections []storage.Correction) (storage.MappingKeys, error)
}

var _ StorageReader = (*storage.View)(nil)

type descriptorKey struct {
	typeString string
	contract   string
	location   Location
}

type structKey struct {
	name     string
	location Location
}

type mappingKey struct {
	desc    *Descriptor
	address string
	slot    string
}

// Decoder parses type strings against one compilation and decodes values.
// It is safe for concurrent use.
type Decoder struct {
	logger          *slog.Logger
	index           *ast.Index
	storageArrayCap int
	memoryArrayCap  int

	mu          sync.Mutex
	descriptors map[descriptorKey]*Descriptor
	structs     map[structKey]*Descriptor
	stateVars   map[string][]Member
	abis        map[string]*abi.ABI

	mappingMu    sync.Mutex
	mappingState map[mappingKey]map[string]Value
}

func New(logger *slog.Logger, index *ast.Index, cfg config.DebuggerConfig) *Decoder {
	storageCap, memoryCap := cfg.StorageArrayCap, cfg.MemoryArrayCap
	if storageCap <= 0 {
		storageCap = config.DefaultStorageArrayCap
	}
	if memoryCap <= 0 {
		memoryCap = config.DefaultMemoryArrayCap
	}
	return &Decoder{
		logger:          logger.With("component", "decoder"),
		index:           index,
		storageArrayCap: storageCap,
		memoryArrayCap:  memoryCap,
		descriptors:     make(map[descriptorKey]*Descriptor),
		structs:         make(map[structKey]*Descriptor),
		stateVars:       make(map[string][]Member),
		abis:            make(map[string]*abi.ABI),
		mappingState:    make(map[mappingKey]map[string]Value),
	}
}

func failed(desc *Descriptor, kind string, msg string) Value {
	metrics.TrackDecodeFailure(kind)
	v := Value{Error: fmt.Sprintf("<decoding failed - %s>", msg)}
	if desc != nil {
		v.Type = desc.TypeName
	}
	return v
}
