package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/device"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

const initialBlockBuffer = 64 * 1024

var (
	dumpFrom   uint64
	dumpCount  uint64
	loadKind   string
	loadInput  string
	loadTrunc  bool
	dumpKind   string
	dumpOutput string
)

var dumpCmd = &cobra.Command{
	Use:   "dump <dir>",
	Short: "write the blocks of a volume in wire format",
	Long: `
Read the blocks of the volume in dir starting at --from and write them in
wire format, one after the other, to stdout or --output. The result can be
fed back with "load".
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if dumpOutput != "" {
			f, err := os.Create(dumpOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return runDump(out, cmd.OutOrStderr(), args[0])
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <dir>",
	Short: "append wire format blocks to a volume",
	Long: `
Read wire format blocks from stdin or --input and append each one to the
volume in dir, creating it if needed.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if loadInput != "" {
			f, err := os.Open(loadInput)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		return runLoad(in, cmd.OutOrStdout(), args[0])
	},
}

func init() {
	dumpCmd.Flags().Uint64Var(&dumpFrom, "from", 0, "first block to dump")
	dumpCmd.Flags().Uint64Var(&dumpCount, "count", 0, "number of blocks to dump (0 dumps to the end)")
	dumpCmd.Flags().StringVar(&dumpKind, "kind", device.KindDedup, "device kind")
	dumpCmd.Flags().StringVar(&dumpOutput, "output", "", "write to this file instead of stdout")
	loadCmd.Flags().StringVar(&loadKind, "kind", device.KindDedup, "device kind")
	loadCmd.Flags().StringVar(&loadInput, "input", "", "read from this file instead of stdin")
	loadCmd.Flags().BoolVar(&loadTrunc, "truncate", false, "empty the volume before loading")
}

func (e *env) deviceOptions() (device.Options, error) {
	vo, err := e.volumeOptions()
	if err != nil {
		return device.Options{}, err
	}
	return device.Options{Volume: vo, Logger: e.logger}, nil
}

func runDump(out, info io.Writer, dir string) error {
	opts, err := app.deviceOptions()
	if err != nil {
		return err
	}
	dev, err := device.Open(dumpKind, dir, core.OpenReadOnly, opts)
	if err != nil {
		return err
	}
	defer dev.Close()

	if dumpFrom != 0 {
		if err := dev.GotoBlock(dumpFrom); err != nil {
			return err
		}
	}

	w := bufio.NewWriter(out)
	buf := make([]byte, initialBlockBuffer)
	var blocks uint64
	for dumpCount == 0 || blocks < dumpCount {
		n, err := dev.Read(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, core.ErrBufferTooSmall) {
			// the position does not move on a failed read
			buf = make([]byte, 2*len(buf))
			continue
		}
		if err != nil {
			return err
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		blocks++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(info, "dumped %d blocks\n", blocks)
	return nil
}

func runLoad(in io.Reader, out io.Writer, dir string) error {
	opts, err := app.deviceOptions()
	if err != nil {
		return err
	}
	dev, err := device.Open(loadKind, dir, core.CreateReadWrite, opts)
	if err != nil {
		return err
	}
	defer dev.Close()

	if loadTrunc {
		if err := dev.Truncate(); err != nil {
			return err
		}
	}
	if err := dev.GotoEnd(); err != nil {
		return err
	}

	r := bufio.NewReader(in)
	buf := make([]byte, initialBlockBuffer)
	var blocks, bytes uint64
	for {
		n, err := readWireBlock(r, &buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "after %d blocks", blocks)
		}
		if _, err := dev.Write(buf[:n]); err != nil {
			return errors.Wrapf(err, "block %d", blocks)
		}
		blocks++
		bytes += uint64(n)
	}
	if !dev.IsOK() {
		return errors.Newf("volume %s failed during load", dir)
	}
	fmt.Fprintf(out, "loaded %d blocks (%d bytes)\n", blocks, bytes)
	return nil
}

// readWireBlock reads one block into *buf, growing it when needed. It
// returns io.EOF only when the input ends on a block boundary.
func readWireBlock(r io.Reader, buf *[]byte) (int, error) {
	hdr := (*buf)[:core.BlockHeaderSize]
	if _, err := io.ReadFull(r, hdr); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, errors.Wrap(core.ErrBadWireBlock, "truncated block header")
		}
		return 0, err
	}
	size := int(core.DecodeBlockHeader(hdr).BlockSize)
	if size < core.BlockHeaderSize {
		return 0, errors.Wrapf(core.ErrBadWireBlock, "block size %d smaller than its header", size)
	}
	if len(*buf) < size {
		grown := make([]byte, size)
		copy(grown, hdr)
		*buf = grown
	}
	if _, err := io.ReadFull(r, (*buf)[core.BlockHeaderSize:size]); err != nil {
		return 0, errors.Wrapf(core.ErrBadWireBlock, "truncated block body: %v", err)
	}
	return size, nil
}
