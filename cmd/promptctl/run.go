package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skosovsky/promptkit"
)

func newRunCmd(load loadFunc) *cobra.Command {
	var (
		vars     []string
		provider string
		model    string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run NAME",
		Short: "Execute a prompt and print the reply",
		Long: `Execute a prompt and print the reply.

Variables are given as --var key=value. A value that parses as JSON is used as
such, so --var count=3 is a number and --var 'user={"tier":"gold"}' an object.
Dotted keys build nested objects: --var customer.tier=gold.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseVars(vars)
			if err != nil {
				return err
			}
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.shutdown()
			engine, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			opts := promptkit.CallOptions{
				Provider:        provider,
				DefaultProvider: a.cfg.Engine.DefaultProvider,
				Model:           model,
				Timeout:         a.cfg.Engine.Timeout,
			}
			if cmd.Flags().Changed("timeout") {
				opts.Timeout = timeout
			}
			res, err := engine.Execute(cmd.Context(), args[0], values, opts)
			if err != nil {
				return err
			}
			return printResult(cmd, res)
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "template variable as key=value (repeatable)")
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "provider name (default: engine.default_provider)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model override")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "provider request timeout")
	return cmd
}

func printResult(cmd *cobra.Command, res *promptkit.Result) error {
	out := cmd.OutOrStdout()
	switch {
	case res.ToolCall != nil:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"tool_call": map[string]any{
			"id":   res.ToolCall.ID,
			"name": res.ToolCall.Name,
			"args": json.RawMessage(res.ToolCall.Args),
		}})
	case res.Data != nil:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Data)
	default:
		_, err := fmt.Fprintln(out, res.Text)
		return err
	}
}

// parseVars turns key=value pairs into a variables map.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--var %q: want key=value", pair)
		}
		var value any = raw
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			value = decoded
		}
		if err := setPath(vars, strings.Split(key, "."), value); err != nil {
			return nil, fmt.Errorf("--var %q: %w", pair, err)
		}
	}
	return vars, nil
}

func setPath(m map[string]any, path []string, value any) error {
	for i, seg := range path {
		if seg == "" {
			return fmt.Errorf("empty key segment")
		}
		if i == len(path)-1 {
			m[seg] = value
			return nil
		}
		next, ok := m[seg].(map[string]any)
		if !ok {
			if _, taken := m[seg]; taken {
				return fmt.Errorf("%q is already set to a non-object value", strings.Join(path[:i+1], "."))
			}
			next = map[string]any{}
			m[seg] = next
		}
		m = next
	}
	return nil
}
