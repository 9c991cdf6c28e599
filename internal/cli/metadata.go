package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/outpack/internal/outpack"
	"github.com/roach88/outpack/internal/packet"
)

// MetadataOptions holds flags for the metadata commands.
type MetadataOptions struct {
	*RootOptions
	Raw   bool
	Since string
}

// PacketSummary is one line of metadata since output.
type PacketSummary struct {
	ID   string  `json:"id" yaml:"id"`
	Name string  `json:"name" yaml:"name"`
	Time float64 `json:"time" yaml:"time"`
}

// NewMetadataCommand creates the metadata command group.
func NewMetadataCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MetadataOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Read packet metadata",
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Print the metadata record of a packet",
		Long: `Print the metadata record of a packet.

With --raw the record is written byte for byte as stored, whatever the
output format.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetadataGet(cmd, opts, args[0])
		},
	}
	get.Flags().BoolVar(&opts.Raw, "raw", false, "write the stored bytes unchanged")

	since := &cobra.Command{
		Use:   "since",
		Short: "List packets created after a time",
		Long: `List packets whose time is strictly greater than --since (seconds since
the epoch), oldest first. Without --since every packet is listed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetadataSince(cmd, opts)
		},
	}
	since.Flags().StringVar(&opts.Since, "since", "", "seconds since the epoch")

	cmd.AddCommand(get, since)
	return cmd
}

func runMetadataGet(cmd *cobra.Command, opts *MetadataOptions, id string) error {
	return opts.withRoot(cmd, func(ctx context.Context, r *outpack.Root, f *OutputFormatter) error {
		text, err := r.GetPacketText(id)
		if err != nil {
			return err
		}
		if opts.Raw {
			_, err := f.Writer.Write(text)
			return err
		}
		var record map[string]any
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("decode %s: %w", id, err)
		}
		return f.Success(record, func(w io.Writer) {
			p, err := packet.Decode(text)
			if err != nil {
				fmt.Fprintln(w, string(text))
				return
			}
			writePacketText(w, p)
		})
	})
}

func runMetadataSince(cmd *cobra.Command, opts *MetadataOptions) error {
	var since *float64
	if opts.Since != "" {
		t, err := strconv.ParseFloat(opts.Since, 64)
		if err != nil {
			return opts.formatter(cmd).Fail(WrapExitError(ExitCommandError, "invalid --since", err))
		}
		since = &t
	}
	return opts.withRoot(cmd, func(ctx context.Context, r *outpack.Root, f *OutputFormatter) error {
		packets, err := r.GetPacketsSince(ctx, since)
		if err != nil {
			return err
		}
		out := make([]PacketSummary, len(packets))
		for i, p := range packets {
			out[i] = PacketSummary{ID: p.ID, Name: p.Name, Time: p.Time}
		}
		return f.Success(out, func(w io.Writer) {
			for _, s := range out {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, strconv.FormatFloat(s.Time, 'f', -1, 64))
			}
		})
	})
}

func writePacketText(w io.Writer, p *packet.Packet) {
	fmt.Fprintf(w, "id:    %s\n", p.ID)
	fmt.Fprintf(w, "name:  %s\n", p.Name)
	fmt.Fprintf(w, "time:  %s\n", strconv.FormatFloat(p.Time, 'f', -1, 64))
	if len(p.Parameters) > 0 {
		fmt.Fprintln(w, "parameters:")
		for _, k := range slices.Sorted(maps.Keys(p.Parameters)) {
			fmt.Fprintf(w, "  %s = %s\n", k, p.Parameters[k])
		}
	}
	if len(p.Files) > 0 {
		fmt.Fprintln(w, "files:")
		for _, file := range p.Files {
			fmt.Fprintf(w, "  %s  %s\n", file.Hash, file.Path)
		}
	}
	if len(p.Depends) > 0 {
		fmt.Fprintln(w, "depends:")
		for _, d := range p.Depends {
			fmt.Fprintf(w, "  %s\n", d.Packet)
		}
	}
}
