package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/outpack/internal/failure"
	"github.com/roach88/outpack/internal/outpack"
)

// CommitResult reports a stored object or packet.
type CommitResult struct {
	Hash   string `json:"hash" yaml:"hash"`
	Packet string `json:"packet,omitempty" yaml:"packet,omitempty"`
}

// NewFileCommand creates the file command group for the object store.
func NewFileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Read and write the object store",
	}

	path := &cobra.Command{
		Use:           "path <hash>",
		Short:         "Print where an object is stored",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRoot(cmd, func(ctx context.Context, r *outpack.Root, f *OutputFormatter) error {
				p, err := r.ObjectPath(args[0])
				if err != nil {
					return err
				}
				if _, err := os.Stat(p); os.IsNotExist(err) {
					return failure.NotFound(failure.CodeObjectNotFound, "object not in store").
						WithDetail("hash", args[0])
				}
				return f.Success(p)
			})
		},
	}

	put := &cobra.Command{
		Use:   "put <hash> <path>",
		Short: "Store a file under its hash",
		Long: `Store the file at path under hash. The content is verified against the
hash first; storing an object that is already present does nothing.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRoot(cmd, func(ctx context.Context, r *outpack.Root, f *OutputFormatter) error {
				if err := r.CommitObjectFile(ctx, args[0], args[1]); err != nil {
					return err
				}
				return f.Success(CommitResult{Hash: args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Stored %s\n", args[0])
				})
			})
		},
	}

	cmd.AddCommand(path, put)
	return cmd
}

// NewPacketCommand creates the packet command group.
func NewPacketCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packet",
		Short: "Write packet metadata",
	}

	put := &cobra.Command{
		Use:   "put <hash> <path>",
		Short: "Commit a metadata record",
		Long: `Commit the metadata record at path, whose bytes must hash to hash. The
packet is marked in the local location. With require_complete_tree set
every file in its manifest must already be stored.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRoot(cmd, func(ctx context.Context, r *outpack.Root, f *OutputFormatter) error {
				data, err := os.ReadFile(args[1])
				if err != nil {
					return WrapExitError(ExitCommandError, "read record", err)
				}
				p, err := r.CommitPacket(ctx, args[0], data)
				if err != nil {
					return err
				}
				return f.Success(CommitResult{Hash: args[0], Packet: p.ID}, func(w io.Writer) {
					fmt.Fprintf(w, "Committed %s\n", p.ID)
				})
			})
		},
	}

	cmd.AddCommand(put)
	return cmd
}
