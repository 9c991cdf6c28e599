package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/outpack/internal/outpack"
)

// NewLocationsCommand creates the locations command.
func NewLocationsCommand(rootOpts *RootOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "locations",
		Short: "Show known locations",
		Long: `Summarise every configured location. With --name, list the packets
recorded for that location instead.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withRoot(cmd, func(ctx context.Context, r *outpack.Root, f *OutputFormatter) error {
				if name != "" {
					entries, err := r.ListLocation(ctx, name)
					if err != nil {
						return err
					}
					return f.Success(entries, func(w io.Writer) {
						for _, e := range entries {
							fmt.Fprintf(w, "%s\t%s\t%s\n", e.Packet, strconv.FormatFloat(e.Time, 'f', -1, 64), e.Hash)
						}
					})
				}

				locs, err := r.Locations(ctx)
				if err != nil {
					return err
				}
				return f.Success(locs, func(w io.Writer) {
					for _, l := range locs {
						fmt.Fprintf(w, "%s\t%s\t%d packet(s)\n", l.Name, l.Type, l.Packets)
					}
				})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "list the packets recorded for this location")

	return cmd
}
