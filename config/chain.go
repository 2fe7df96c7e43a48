package config

import (
	"fmt"
	"net/url"

	"github.com/initia-labs/soldebug/types"
)

type ChainConfig struct {
	JsonRpcUrls []string
	Environment string
}

// HasEndpoints reports whether a JSON-RPC node is configured.
func (cc ChainConfig) HasEndpoints() bool {
	return len(cc.JsonRpcUrls) > 0
}

func (cc ChainConfig) Validate() error {
	// JSON-RPC endpoints are optional; offline sessions never query a node
	for _, raw := range cc.JsonRpcUrls {
		u, err := url.Parse(raw)
		if err != nil {
			return types.NewInvalidValueError("JSON_RPC_URL", raw, fmt.Sprintf("invalid URL: %v", err))
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return types.NewInvalidValueError("JSON_RPC_URL", raw, fmt.Sprintf("must use http or https scheme, got: %s", u.Scheme))
		}
	}
	return nil
}

// RequireEndpoints fails when a command needs a node and none is configured.
func (cc ChainConfig) RequireEndpoints() error {
	if !cc.HasEndpoints() {
		return types.NewValidationError("JSON_RPC_URL", "required field is missing")
	}
	return nil
}
