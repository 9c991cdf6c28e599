package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/outpack/internal/config"
	"github.com/roach88/outpack/internal/hash"
	"github.com/roach88/outpack/internal/outpack"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	HashAlgorithm       string
	RequireCompleteTree bool
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create an empty repository",
		Long: `Create the .outpack skeleton and configuration in dir (or --root).

Examples:
  outpack init ./archive
  outpack init --root ./archive --hash-algorithm blake3`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Root = args[0]
			}
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.HashAlgorithm, "hash-algorithm", string(hash.Default), "hash algorithm for objects and records")
	cmd.Flags().BoolVar(&opts.RequireCompleteTree, "require-complete-tree", false, "reject packets whose files are not all stored")

	return cmd
}

func runInit(cmd *cobra.Command, opts *InitOptions) error {
	f := opts.formatter(cmd)
	if opts.Root == "" {
		return f.Fail(NewExitError(ExitCommandError, "no repository root: pass a directory, --root or set "+RootEnv))
	}
	alg, err := hash.ParseAlgorithm(opts.HashAlgorithm)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "invalid --hash-algorithm", err))
	}

	cfg := config.Default()
	cfg.Core.HashAlgorithm = alg
	cfg.Core.RequireCompleteTree = opts.RequireCompleteTree

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	r, err := outpack.Init(ctx, opts.Root, cfg, outpack.WithLogger(opts.logger()))
	if err != nil {
		return f.Fail(err)
	}
	defer r.Close()

	info := r.RootInfo()
	return f.Success(info, func(w io.Writer) {
		fmt.Fprintf(w, "Initialised repository at %s (%s)\n", r.Path(), info.HashAlgorithm)
	})
}
