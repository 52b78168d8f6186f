package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/INLOpen/dedupstore/core"
	"github.com/INLOpen/dedupstore/volume"
	tdigest "github.com/caio/go-tdigest/v4"
	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/cobra"
)

var statsOrderBy string

var statsCmd = &cobra.Command{
	Use:   "stats <dir>",
	Short: "print the record size distribution of a volume",
	Long: `
Count the data records of the volume in dir by their declared size.
Continuation records (negative stream) are not counted. The output is
ordered by --order-by:

  count  most frequent sizes first
  size   largest sizes first
  bytes  sizes with the most bytes in total first
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd.OutOrStdout(), args[0], statsOrderBy)
	},
}

func init() {
	statsCmd.Flags().StringVarP(&statsOrderBy, "order-by", "o", "count", "sort order: count, size or bytes")
}

type sizeCount struct {
	size  uint64
	count uint64
}

func (s sizeCount) bytes() uint64 { return s.size * s.count }

// sortSizes orders the histogram rows. Ties always fall back to the larger
// size first so the output is stable.
func sortSizes(rows []sizeCount, orderBy string) error {
	var less func(a, b sizeCount) bool
	switch orderBy {
	case "count":
		less = func(a, b sizeCount) bool {
			if a.count != b.count {
				return a.count > b.count
			}
			return a.size > b.size
		}
	case "size":
		less = func(a, b sizeCount) bool { return a.size > b.size }
	case "bytes":
		less = func(a, b sizeCount) bool {
			if a.bytes() != b.bytes() {
				return a.bytes() > b.bytes()
			}
			return a.size > b.size
		}
	default:
		return errors.Newf("unknown order %q (want count, size or bytes)", orderBy)
	}
	sort.Slice(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
	return nil
}

// collectSizes counts the data records by declared size and returns the
// rows together with a digest of the same sizes.
func collectSizes(v *volume.Volume) ([]sizeCount, *tdigest.TDigest, error) {
	counts := make(map[uint64]uint64)
	err := v.Records(func(_ uint64, r core.Record) error {
		if r.Header.Stream >= 0 {
			counts[uint64(r.Header.DataSize)]++
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	td, err := tdigest.New()
	if err != nil {
		return nil, nil, errors.Wrap(err, "tdigest.New failed")
	}
	rows := make([]sizeCount, 0, len(counts))
	for size, n := range counts {
		rows = append(rows, sizeCount{size: size, count: n})
		if err := td.AddWeighted(float64(size), n); err != nil {
			return nil, nil, errors.Wrap(err, "tdigest AddWeighted failed")
		}
	}
	return rows, td, nil
}

func runStats(out io.Writer, dir, orderBy string) error {
	opts, err := app.volumeOptions()
	if err != nil {
		return err
	}
	v, err := volume.Open(dir, core.OpenReadOnly, opts)
	if err != nil {
		return err
	}
	defer v.Close()

	rows, td, err := collectSizes(v)
	if err != nil {
		return err
	}
	if err := sortSizes(rows, orderBy); err != nil {
		return err
	}

	var total sizeCount
	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"size", "count", "bytes used"})
	tw.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range rows {
		total.count += r.count
		total.size += r.bytes()
		tw.Append([]string{
			strconv.FormatUint(r.size, 10),
			strconv.FormatUint(r.count, 10),
			strconv.FormatUint(r.bytes(), 10),
		})
	}
	tw.SetFooter([]string{"total", strconv.FormatUint(total.count, 10), strconv.FormatUint(total.size, 10)})
	tw.Render()
	fmt.Fprintf(out, "%d blocks, %d records\n", v.NumBlocks(), v.NumRecords())
	if td.Count() > 0 {
		fmt.Fprintf(out, "record size p50 %.0f, p90 %.0f, p99 %.0f\n",
			td.Quantile(0.5), td.Quantile(0.9), td.Quantile(0.99))
	}

	var stored uint64
	for _, fs := range v.Layout() {
		if fs.Role == volume.RoleData {
			stored += fs.End
		}
	}
	fmt.Fprintf(out, "payload bytes stored: %d\n", stored)
	if du, err := disk.Usage(dir); err == nil {
		fmt.Fprintf(out, "filesystem: %d of %d bytes used (%.1f%%)\n", du.Used, du.Total, du.UsedPercent)
	} else {
		app.logger.Warn("Could not read filesystem usage", "dir", dir, "error", err)
	}
	return nil
}
