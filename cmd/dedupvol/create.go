package main

import (
	"fmt"
	"io"

	"github.com/INLOpen/dedupstore/volume"
	"github.com/spf13/cobra"
)

var createBlockSize uint64

var createCmd = &cobra.Command{
	Use:   "create <dir>",
	Short: "create an empty volume",
	Long: `
Create an empty volume in dir. The volume gets an aligned data file for
the configured dedup block size and the fallback data file that accepts
every payload.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreate(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	createCmd.Flags().Uint64Var(
		&createBlockSize, "block-size", 0, "dedup block size of the aligned data file (0 uses the configured size)")
}

func runCreate(out io.Writer, dir string) error {
	opts, err := app.volumeOptions()
	if err != nil {
		return err
	}
	if createBlockSize != 0 {
		opts.DedupBlockSize = createBlockSize
	}
	v, err := volume.CreateNew(dir, opts)
	if err != nil {
		return err
	}
	if err := v.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "created volume %s (dedup block size %d)\n", dir, opts.DedupBlockSize)
	return nil
}
