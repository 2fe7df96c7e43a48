package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/initia-labs/soldebug/calltree"
	"github.com/initia-labs/soldebug/config"
	"github.com/initia-labs/soldebug/decoder"
	"github.com/initia-labs/soldebug/log"
	"github.com/initia-labs/soldebug/sentry_integration"
	"github.com/initia-labs/soldebug/session"
)

type inspection struct {
	Position     *session.Position        `json:"position,omitempty"`
	Scopes       []*calltree.Scope        `json:"scopes"`
	ReducedTrace []int                    `json:"reducedTrace"`
	Functions    []calltree.FunctionEntry `json:"functions"`
	Globals      map[string]decoder.Value `json:"globals"`
	Locals       map[string]decoder.Value `json:"locals"`
	Errors       []string                 `json:"errors,omitempty"`
}

func inspectCmd() *cobra.Command {
	var (
		flags loadFlags
		step  int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the call tree and the variables at a step as JSON",
		Long: `
Print the call tree and the decoded variables of a transaction at a step.

The trace and transaction are read from files (--trace, --tx) or fetched from
JSON_RPC_URL (--tx-hash).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.GetConfig()
			if err != nil {
				return err
			}
			logger := log.NewLogger(cfg)
			if err := sentry_integration.Init(cfg); err != nil {
				logger.Warn("sentry disabled", "error", err)
			}
			defer sentry_integration.Flush()

			ctx := cmd.Context()
			s, err := loadSession(ctx, cfg, logger, &flags)
			if err != nil {
				return err
			}
			if _, err := s.JumpTo(ctx, step); err != nil {
				return err
			}

			out := inspection{
				Scopes:       s.Tree.Scopes(),
				ReducedTrace: s.Tree.ReducedTrace(),
			}
			if pos, err := s.Position(); err == nil {
				out.Position = &pos
			} else {
				out.Errors = append(out.Errors, err.Error())
			}
			if out.Functions, err = s.Functions(); err != nil {
				out.Errors = append(out.Errors, err.Error())
			}
			if out.Globals, err = s.Globals(ctx); err != nil {
				out.Errors = append(out.Errors, err.Error())
			}
			if out.Locals, err = s.Locals(ctx); err != nil {
				out.Errors = append(out.Errors, err.Error())
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&step, "step", 0, "trace step to inspect")

	return cmd
}
