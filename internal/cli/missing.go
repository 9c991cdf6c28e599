package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/outpack/internal/outpack"
)

// NewMissingCommand creates the missing command group used when
// reconciling with a peer.
func NewMissingCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "missing",
		Short: "Compare a peer's holdings with this repository",
	}

	var unpacked bool
	packets := &cobra.Command{
		Use:   "packets [id...]",
		Short: "List packets held here that are not among the given ids",
		Long: `List the packets this repository holds that are absent from the given
ids, oldest first. With --unpacked only packets unpacked locally are
offered.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRoot(cmd, func(ctx context.Context, r *outpack.Root, f *OutputFormatter) error {
				ids, err := r.MissingPackets(ctx, args, unpacked)
				if err != nil {
					return err
				}
				return f.Success(ids, writeLines(ids))
			})
		},
	}
	packets.Flags().BoolVar(&unpacked, "unpacked", false, "only offer packets unpacked locally")

	var forPackets bool
	files := &cobra.Command{
		Use:   "files <hash...>",
		Short: "List hashes absent from the object store",
		Long: `List the given hashes that are absent from the object store, in input
order. With --packets the arguments are packet ids and their manifests
are checked instead.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRoot(cmd, func(ctx context.Context, r *outpack.Root, f *OutputFormatter) error {
				var (
					hashes []string
					err    error
				)
				if forPackets {
					hashes, err = r.MissingFilesFor(ctx, args)
				} else {
					hashes, err = r.MissingFiles(args)
				}
				if err != nil {
					return err
				}
				return f.Success(hashes, writeLines(hashes))
			})
		},
	}
	files.Flags().BoolVar(&forPackets, "packets", false, "arguments are packet ids")

	cmd.AddCommand(packets, files)
	return cmd
}

func writeLines(lines []string) func(io.Writer) {
	return func(w io.Writer) {
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
	}
}
