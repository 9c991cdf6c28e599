package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/outpack/internal/outpack"
)

// RootEnv names the environment variable holding the default --root.
const RootEnv = "OUTPACK_ROOT"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Root    string
	Verbose bool
	Format  string // "text" | "json" | "yaml"

	// Logger is built from the flags before any subcommand runs.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the outpack CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "outpack",
		Short: "outpack - packet provenance store",
		Long:  "Inspect, query and reconcile an outpack repository of immutable packets.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			opts.Logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Root, "root", os.Getenv(RootEnv), "repository root (default $"+RootEnv+")")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewMetadataCommand(opts))
	cmd.AddCommand(NewChecksumCommand(opts))
	cmd.AddCommand(NewMissingCommand(opts))
	cmd.AddCommand(NewFileCommand(opts))
	cmd.AddCommand(NewPacketCommand(opts))
	cmd.AddCommand(NewLocationsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// logger returns the configured logger, or one writing to stderr when the
// command runs without the root's pre-run hook (as in tests).
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		o.Logger = newLogger(os.Stderr, o.Verbose)
	}
	return o.Logger
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openRoot opens the repository named by --root.
func (o *RootOptions) openRoot(ctx context.Context) (*outpack.Root, error) {
	if o.Root == "" {
		return nil, NewExitError(ExitCommandError, "no repository root: pass --root or set "+RootEnv)
	}
	return outpack.Open(ctx, o.Root, outpack.WithLogger(o.logger()))
}

// withRoot opens the repository, runs fn and reports its error.
func (o *RootOptions) withRoot(cmd *cobra.Command, fn func(ctx context.Context, r *outpack.Root, f *OutputFormatter) error) error {
	f := o.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	r, err := o.openRoot(ctx)
	if err != nil {
		return f.Fail(err)
	}
	defer r.Close()
	f.VerboseLog("repository %s (%s)", r.Path(), r.RootInfo().HashAlgorithm)
	if err := fn(ctx, r, f); err != nil {
		return f.Fail(err)
	}
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
