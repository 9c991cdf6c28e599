package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/outpack/internal/outpack"
)

// NewChecksumCommand creates the checksum command.
func NewChecksumCommand(rootOpts *RootOptions) *cobra.Command {
	var alg string

	cmd := &cobra.Command{
		Use:   "checksum",
		Short: "Digest the set of packet ids",
		Long: `Print a digest of the sorted packet ids. Two repositories holding the
same packets print the same digest.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRoot(cmd, func(ctx context.Context, r *outpack.Root, f *OutputFormatter) error {
				h, err := r.IDsDigest(alg)
				if err != nil {
					return err
				}
				return f.Success(h.String())
			})
		},
	}

	cmd.Flags().StringVar(&alg, "alg", "", "hash algorithm (repository algorithm when empty)")

	return cmd
}
