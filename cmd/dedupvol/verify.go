package main

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/volume"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var verifyRead bool

var verifyCmd = &cobra.Command{
	Use:   "verify <dir>...",
	Short: "check that volumes are consistent",
	Long: `
Check that the blocks of each volume cover its records without gaps and
that every record points into a known data file. With --read every block
is also read back in wire format. Volumes are checked in parallel.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cmd.OutOrStdout(), args...)
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyRead, "read", false, "read every block back")
}

func runVerify(out io.Writer, dirs ...string) error {
	opts, err := app.volumeOptions()
	if err != nil {
		return err
	}

	reports := make([]string, len(dirs))
	errs := make([]error, len(dirs))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, dir := range dirs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i], errs[i] = verifyVolume(dir, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed error
	for i, dir := range dirs {
		if errs[i] != nil {
			fmt.Fprintf(out, "%s: %v\n", dir, errs[i])
			failed = errors.CombineErrors(failed, errors.Wrapf(errs[i], "%s", dir))
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", dir, reports[i])
	}
	return failed
}

func verifyVolume(dir string, opts volume.Options) (string, error) {
	v, err := volume.Open(dir, core.OpenReadOnly, opts)
	if err != nil {
		return "", err
	}
	defer v.Close()

	if err := v.Verify(); err != nil {
		return "", err
	}
	if verifyRead {
		var buf []byte
		for n := v.Manifest().BlockFiles[0].Start; n < v.NumBlocks(); n++ {
			size, err := v.WireSize(n)
			if err != nil {
				return "", err
			}
			if cap(buf) < size {
				buf = make([]byte, size)
			}
			if _, err := v.ReadBlock(n, buf[:size]); err != nil {
				return "", errors.Wrapf(err, "block %d", n)
			}
		}
	}
	return fmt.Sprintf("ok, %d blocks, %d records", v.NumBlocks(), v.NumRecords()), nil
}
