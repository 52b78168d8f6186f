package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/INLOpen/dedupstore/manifest"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configYAML bool

var configCmd = &cobra.Command{
	Use:   "config <dir>",
	Short: "print the manifest of a volume",
	Long: `
Print the header sizes and the files recorded in the manifest of the volume
in dir. The volume is not opened, so this also works when data files are
missing or damaged.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	configCmd.Flags().BoolVar(&configYAML, "yaml", false, "print the manifest as YAML")
}

type manifestView struct {
	Info struct {
		BlockHeaderSize       uint32 `yaml:"block_header_size"`
		RecordHeaderSize      uint32 `yaml:"record_header_size"`
		DedupBlockHeaderSize  uint32 `yaml:"dedup_block_header_size"`
		DedupRecordHeaderSize uint32 `yaml:"dedup_record_header_size"`
	} `yaml:"info"`
	BlockFiles  []indexFileView `yaml:"block_files"`
	RecordFiles []indexFileView `yaml:"record_files"`
	DataFiles   []dataFileView  `yaml:"data_files"`
}

type indexFileView struct {
	Path  string `yaml:"path"`
	Idx   uint32 `yaml:"idx"`
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

type dataFileView struct {
	Path      string `yaml:"path"`
	Idx       uint32 `yaml:"idx"`
	BlockSize uint64 `yaml:"block_size"`
	Size      uint64 `yaml:"size"`
	ReadOnly  bool   `yaml:"read_only"`
}

func newManifestView(m *manifest.Manifest) manifestView {
	var mv manifestView
	mv.Info.BlockHeaderSize = m.Info.BlockHeaderSize
	mv.Info.RecordHeaderSize = m.Info.RecordHeaderSize
	mv.Info.DedupBlockHeaderSize = m.Info.DedupBlockHeaderSize
	mv.Info.DedupRecordHeaderSize = m.Info.DedupRecordHeaderSize
	for _, f := range m.BlockFiles {
		mv.BlockFiles = append(mv.BlockFiles, indexFileView{Path: f.Path, Idx: f.Idx, Start: f.Start, End: f.End})
	}
	for _, f := range m.RecordFiles {
		mv.RecordFiles = append(mv.RecordFiles, indexFileView{Path: f.Path, Idx: f.Idx, Start: f.Start, End: f.End})
	}
	for _, f := range m.DataFiles {
		mv.DataFiles = append(mv.DataFiles, dataFileView{
			Path:      f.Path,
			Idx:       f.Idx,
			BlockSize: f.BlockSize,
			Size:      f.Size,
			ReadOnly:  f.ReadOnly,
		})
	}
	return mv
}

func runConfig(out io.Writer, dir string) error {
	m, err := manifest.Read(dir)
	if err != nil {
		return err
	}
	if configYAML {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(newManifestView(m)); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(out, "block header size:        %d\n", m.Info.BlockHeaderSize)
	fmt.Fprintf(out, "record header size:       %d\n", m.Info.RecordHeaderSize)
	fmt.Fprintf(out, "dedup block header size:  %d\n", m.Info.DedupBlockHeaderSize)
	fmt.Fprintf(out, "dedup record header size: %d\n", m.Info.DedupRecordHeaderSize)

	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"role", "path", "idx", "start", "end", "block size", "size", "read only"})
	for _, f := range m.BlockFiles {
		tw.Append(indexRow("block", f))
	}
	for _, f := range m.RecordFiles {
		tw.Append(indexRow("record", f))
	}
	for _, f := range m.DataFiles {
		tw.Append([]string{
			"data",
			f.Path,
			strconv.FormatUint(uint64(f.Idx), 10),
			"",
			"",
			strconv.FormatUint(f.BlockSize, 10),
			strconv.FormatUint(f.Size, 10),
			strconv.FormatBool(f.ReadOnly),
		})
	}
	tw.Render()
	return nil
}

func indexRow(role string, f manifest.IndexFile) []string {
	return []string{
		role,
		f.Path,
		strconv.FormatUint(uint64(f.Idx), 10),
		strconv.FormatUint(f.Start, 10),
		strconv.FormatUint(f.End, 10),
		"",
		"",
		"",
	}
}
