package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// StructLog is one record of a debug_traceTransaction structLogs array.
type StructLog struct {
	Pc      uint64            `json:"pc"`
	Op      string            `json:"op"`
	Gas     uint64            `json:"gas"`
	GasCost uint64            `json:"gasCost"`
	Depth   int               `json:"depth"`
	Stack   []string          `json:"stack"`
	Memory  []string          `json:"memory,omitempty"`
	Storage map[string]string `json:"storage,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// TraceTransactionResult is the result of debug_traceTransaction with the struct logger.
type TraceTransactionResult struct {
	Gas         uint64      `json:"gas"`
	Failed      bool        `json:"failed"`
	ReturnValue string      `json:"returnValue"`
	StructLogs  []StructLog `json:"structLogs"`
}

// TraceTransactionOptions mirrors the struct logger config of debug_traceTransaction.
type TraceTransactionOptions struct {
	DisableStorage   bool `json:"disableStorage"`
	DisableStack     bool `json:"disableStack"`
	EnableMemory     bool `json:"enableMemory"`
	EnableReturnData bool `json:"enableReturnData"`
}

// Transaction holds the fields of eth_getTransactionByHash the debugger needs.
type Transaction struct {
	Hash             common.Hash     `json:"hash"`
	BlockHash        common.Hash     `json:"blockHash"`
	BlockNumber      *hexutil.Big    `json:"blockNumber"`
	TransactionIndex hexutil.Uint64  `json:"transactionIndex"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Input            hexutil.Bytes   `json:"input"`
}

// IsCreation reports whether the transaction deploys a contract.
func (tx Transaction) IsCreation() bool {
	return tx.To == nil
}

// NormalizeAddress renders an address as lower-case 0x-prefixed hex. Longer
// inputs such as stack words keep their last 20 bytes.
func NormalizeAddress(hex string) string {
	return strings.ToLower(common.HexToAddress(hex).Hex())
}
