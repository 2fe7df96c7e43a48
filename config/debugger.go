package config

import (
	"fmt"

	"github.com/initia-labs/soldebug/types"
)

// RevertPolicy selects how a REVERT rolls back the recorded storage writes.
type RevertPolicy string

const (
	// RevertClearAll drops every write recorded so far.
	RevertClearAll RevertPolicy = "clear-all"
	// RevertScoped drops only the writes made since the reverting frame opened.
	RevertScoped RevertPolicy = "scoped"
)

const (
	DefaultStoragePageSize = 100
	DefaultStorageMaxPages = 10
	DefaultStorageArrayCap = 300
	DefaultMemoryArrayCap  = 10
	DefaultMaxScopeDepth   = 1000
)

// DebuggerConfig holds the limits of the trace engines.
type DebuggerConfig struct {
	StoragePageSize int
	StorageMaxPages int
	StorageArrayCap int
	MemoryArrayCap  int
	MaxScopeDepth   int
	RevertPolicy    RevertPolicy
}

func DefaultDebuggerConfig() *DebuggerConfig {
	return &DebuggerConfig{
		StoragePageSize: DefaultStoragePageSize,
		StorageMaxPages: DefaultStorageMaxPages,
		StorageArrayCap: DefaultStorageArrayCap,
		MemoryArrayCap:  DefaultMemoryArrayCap,
		MaxScopeDepth:   DefaultMaxScopeDepth,
		RevertPolicy:    RevertClearAll,
	}
}

func (dc DebuggerConfig) Validate() error {
	if dc.StoragePageSize < 1 {
		return types.NewValidationError("STORAGE_PAGE_SIZE", "must be at least 1")
	}
	if dc.StorageMaxPages < 1 {
		return types.NewValidationError("STORAGE_MAX_PAGES", "must be at least 1")
	}
	if dc.StorageArrayCap < 1 {
		return types.NewValidationError("STORAGE_ARRAY_CAP", "must be at least 1")
	}
	if dc.MemoryArrayCap < 1 {
		return types.NewValidationError("MEMORY_ARRAY_CAP", "must be at least 1")
	}
	if dc.MaxScopeDepth < 1 {
		return types.NewValidationError("MAX_SCOPE_DEPTH", "must be at least 1")
	}
	switch dc.RevertPolicy {
	case RevertClearAll, RevertScoped:
	default:
		return types.NewInvalidValueError("REVERT_POLICY", string(dc.RevertPolicy), fmt.Sprintf("must be '%s' or '%s'", RevertClearAll, RevertScoped))
	}
	return nil
}
