package types

// Trace and decoding constants
const (
	// ContractCreationPrefix starts every synthetic creation-frame address.
	ContractCreationPrefix = "(Contract Creation - Step"

	// WordSize is the size in bytes of an EVM stack word and storage slot.
	WordSize = 32

	// ZeroSlot is the hex rendering of the zero storage key.
	ZeroSlot = "0x0000000000000000000000000000000000000000000000000000000000000000"
)
