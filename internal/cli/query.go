package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/outpack/internal/outpack"
	"github.com/roach88/outpack/internal/packet"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	This []string // k=v bindings for this:<key>
}

// QueryResult is the structured output of the query command.
type QueryResult struct {
	Query string   `json:"query" yaml:"query"`
	IDs   []string `json:"ids" yaml:"ids"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <expr>",
		Short: "Select packets with a query",
		Long: `Evaluate a query against the repository and print matching packet ids,
oldest first.

Values given with --this are parsed as YAML scalars, so --this n=1 binds
a number and --this n='"1"' a string.

Examples:
  outpack query "latest(name == 'data')"
  outpack query "parameter:x == this:x" --this x=2
  outpack query "usedby(id == '20240101-000000-00000000')"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&opts.This, "this", nil, "environment binding k=v for this:k (repeatable)")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions, text string) error {
	env, err := parseBindings(opts.This)
	if err != nil {
		return opts.formatter(cmd).Fail(WrapExitError(ExitCommandError, "invalid --this", err))
	}
	return opts.withRoot(cmd, func(ctx context.Context, r *outpack.Root, f *OutputFormatter) error {
		ids, err := r.EvaluateQuery(ctx, text, env)
		if err != nil {
			return err
		}
		return f.Success(QueryResult{Query: text, IDs: ids}, func(w io.Writer) {
			for _, id := range ids {
				fmt.Fprintln(w, id)
			}
		})
	})
}

// parseBindings turns k=v pairs into an environment. Returns nil when no
// bindings are given so this: lookups report an unknown scope.
func parseBindings(pairs []string) (packet.Parameters, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(packet.Parameters, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("binding %q is not k=v", pair)
		}
		var decoded any
		if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
		// An empty value decodes to nil; keep it as the empty string.
		if raw == "" {
			decoded = ""
		}
		v, err := packet.ValueOf(decoded)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
		env[key] = v
	}
	return env, nil
}
