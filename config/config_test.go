package config_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/initia-labs/soldebug/config"
	"github.com/initia-labs/soldebug/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.NewDefaultConfig()
	require.NoError(t, cfg.Validate())
	require.False(t, cfg.GetChainConfig().HasEndpoints())
	require.Nil(t, cfg.GetSentryConfig())
	require.Equal(t, "plain", cfg.GetLogFormat())
}

func TestChainConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		urls    []string
		wantErr bool
	}{
		{name: "no endpoints", urls: nil},
		{name: "http endpoint", urls: []string{"http://localhost:8545"}},
		{name: "two endpoints", urls: []string{"https://a.example", "https://b.example"}},
		{name: "bad scheme", urls: []string{"ftp://localhost"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := config.ChainConfig{JsonRpcUrls: tt.urls}
			err := cc.Validate()
			if tt.wantErr {
				var se *types.StandardError
				require.True(t, errors.As(err, &se))
				require.Equal(t, types.ErrTypeInvalidValue, se.Type)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDebuggerConfigValidate(t *testing.T) {
	dc := config.DefaultDebuggerConfig()
	require.NoError(t, dc.Validate())

	dc.RevertPolicy = "partial"
	require.Error(t, dc.Validate())

	dc = config.DefaultDebuggerConfig()
	dc.MaxScopeDepth = 0
	require.Error(t, dc.Validate())
}

func TestLogSettings(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.SetLogSettings("verbose", "plain")
	require.Error(t, cfg.Validate())

	cfg.SetLogSettings("debug", "json")
	require.NoError(t, cfg.Validate())
	require.Equal(t, "json", cfg.GetLogFormat())
}
