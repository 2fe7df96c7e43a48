package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/initia-labs/soldebug/config"
	"github.com/initia-labs/soldebug/log"
	"github.com/initia-labs/soldebug/metrics"
	"github.com/initia-labs/soldebug/sentry_integration"
	"github.com/initia-labs/soldebug/session"
)

const debugHelp = `commands:
  n | next             next line          N | prev       previous line
  s | in               step in            o | out        step out
  c | continue         run to breakpoint  rc           run back to breakpoint
  b <file>:<line>      set breakpoint     cb <file>:<line>  clear breakpoint
  ib <pc>              instruction breakpoint
  j <step>             jump to step
  l | locals           g | globals        w | where      asm
  q | quit`

func debugCmd() *cobra.Command {
	var flags loadFlags
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Step through a transaction interactively",
		Long: `
Step through a transaction line by line, reading commands from stdin.

Lines are one-based. When METRICS_ENABLED is set the metrics endpoint is
served while the session runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.GetConfig()
			if err != nil {
				return err
			}
			logger := log.NewLogger(cfg)
			if err := sentry_integration.Init(cfg); err != nil {
				logger.Warn("sentry disabled", slog.Any("error", err))
			}
			defer sentry_integration.Flush()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			metricsServer := metrics.NewServer(cfg, logger)
			go func() {
				if err := metricsServer.Start(); err != nil {
					logger.Error("metrics server failed", slog.Any("error", err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("metrics server shutdown failed", slog.Any("error", err))
				}
			}()

			s, err := loadSession(ctx, cfg, logger, &flags)
			if err != nil {
				return err
			}
			r := &repl{s: s, out: cmd.OutOrStdout()}
			return r.run(ctx, cmd.InOrStdin())
		},
	}
	flags.register(cmd)

	return cmd
}

type repl struct {
	s   *session.Session
	out io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	step, err := r.s.Start(ctx)
	if err != nil {
		return err
	}
	r.report(step)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "(soldebug) ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		quit, err := r.exec(ctx, fields[0], fields[1:])
		if err != nil {
			fmt.Fprintln(r.out, "error:", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) exec(ctx context.Context, command string, args []string) (bool, error) {
	var (
		step int
		err  error
	)
	switch command {
	case "q", "quit", "exit":
		return true, nil
	case "h", "help":
		fmt.Fprintln(r.out, debugHelp)
		return false, nil
	case "n", "next":
		step, err = r.s.NextLine(ctx, false)
	case "N", "prev":
		step, err = r.s.NextLine(ctx, true)
	case "s", "in":
		step, err = r.s.StepIn(ctx)
	case "o", "out":
		step, err = r.s.StepOut(ctx)
	case "c", "continue":
		step, err = r.s.Continue(ctx, false)
	case "rc":
		step, err = r.s.Continue(ctx, true)
	case "j":
		n, perr := intArg(args)
		if perr != nil {
			return false, perr
		}
		step, err = r.s.JumpTo(ctx, n)
	case "b", "cb":
		path, line, perr := lineArg(args)
		if perr != nil {
			return false, perr
		}
		if command == "b" {
			bp := r.s.SetBreakpoint(path, line)
			fmt.Fprintf(r.out, "breakpoint %d at %s:%d verified=%t\n", bp.ID, bp.Path, bp.Line+1, bp.Verified)
		} else if _, ok := r.s.ClearBreakpoint(path, line); !ok {
			fmt.Fprintln(r.out, "no breakpoint there")
		}
		return false, nil
	case "ib":
		pc, perr := intArg(args)
		if perr != nil {
			return false, perr
		}
		r.s.SetInstructionBreakpoint(uint64(pc))
		return false, nil
	case "l", "locals":
		v, err := r.s.Locals(ctx)
		if err != nil {
			return false, err
		}
		return false, r.print(v)
	case "g", "globals":
		v, err := r.s.Globals(ctx)
		if err != nil {
			return false, err
		}
		return false, r.print(v)
	case "w", "where":
		r.report(r.s.Step())
		return false, nil
	case "asm":
		instructions, idx, err := r.s.Instructions(ctx)
		if err != nil {
			return false, err
		}
		for i := max(idx-5, 0); i < min(idx+6, len(instructions)); i++ {
			marker := "  "
			if i == idx {
				marker = "=>"
			}
			fmt.Fprintf(r.out, "%s %s\n", marker, instructions[i])
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q, try help", command)
	}
	if err != nil {
		return false, err
	}
	if step == session.NoTarget {
		fmt.Fprintln(r.out, "no further stop")
		return false, nil
	}
	r.report(step)
	return false, nil
}

func (r *repl) report(step int) {
	if step == session.NoTarget {
		fmt.Fprintln(r.out, "no source location to stop at")
		return
	}
	pos, err := r.s.Position()
	if err != nil {
		fmt.Fprintf(r.out, "step %d\n", step)
		return
	}
	fmt.Fprintf(r.out, "step %d at %s:%d:%d\n", step, pos.Path, pos.Range.StartLine+1, pos.Range.StartColumn+1)
}

func (r *repl) print(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func intArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one number")
	}
	return strconv.Atoi(args[0])
}

// lineArg parses <file>:<line> with a one-based line.
func lineArg(args []string) (string, int, error) {
	if len(args) != 1 {
		return "", 0, fmt.Errorf("expected <file>:<line>")
	}
	i := strings.LastIndexByte(args[0], ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("expected <file>:<line>")
	}
	line, err := strconv.Atoi(args[0][i+1:])
	if err != nil || line < 1 {
		return "", 0, fmt.Errorf("invalid line %q", args[0][i+1:])
	}
	return args[0][:i], line - 1, nil
}
