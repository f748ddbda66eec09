// Copyright 2024 The Taffy Authors. All rights reserved.
// Use of this source code is governed by an Apache v2 license
// that can be found in the LICENSE file.

// Command tafdump is a diagnostic front-end for TAF master files: it
// dumps header and chunk-directory contents, verifies CRC32s, and
// extracts individual chunks. The dump and chunk subcommands load the whole file with
// taf.LoadFromFileSafe, which rejects TAFO overlay files.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	taf "github.com/taffy-assets/taf"
)

func main() {
	root := &cobra.Command{
		Use:   "tafdump",
		Short: "Inspect TAF container files",
	}
	root.AddCommand(newDumpCmd())
	root.AddCommand(newChunkCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine version this dumper implements",
		Run: func(cmd *cobra.Command, args []string) {
			v := taf.EngineVersion
			fmt.Printf("tafdump: engine version %d.%d.%d\n", v.Major, v.Minor, v.Patch)
		},
	}
}

func newDumpCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "dump <path>",
		Short: "Dump a TAF file's header and chunk directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &taf.Options{}
			if verbose {
				opts.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
			}
			asset, err := taf.LoadFromFileSafe(args[0], opts)
			if err != nil {
				return err
			}
			printAssetSummary(asset)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log diagnostic events during load")
	return cmd
}

func printAssetSummary(asset *taf.Asset) {
	h := asset.Header()
	fmt.Printf("version:     %d.%d.%d\n", h.Version.Major, h.Version.Minor, h.Version.Patch)
	fmt.Printf("asset type:  %d\n", h.AssetType)
	fmt.Printf("features:    0x%016x\n", h.FeatureFlags)
	fmt.Printf("total size:  %d bytes\n", h.TotalSize)
	fmt.Printf("creator:     %s\n", asset.Creator())
	fmt.Printf("description: %s\n", asset.Description())
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tNAME\tOFFSET\tSIZE\tCRC32")
	for _, e := range asset.Directory() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t0x%08x\n", e.Tag, fixedNameOf(e), e.Offset, e.Size, e.CRC32)
	}
	w.Flush()
}

func fixedNameOf(e taf.DirectoryEntry) string {
	n := 0
	for n < len(e.Name) && e.Name[n] != 0 {
		n++
	}
	return string(e.Name[:n])
}

func newChunkCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "chunk <path> <tag>",
		Short: "Extract one chunk's raw payload bytes by its FourCC tag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := taf.LoadFromFileSafe(args[0], nil)
			if err != nil {
				return err
			}
			var tag *taf.ChunkTag
			for _, t := range asset.GetChunkTypes() {
				if t.String() == args[1] {
					found := t
					tag = &found
					break
				}
			}
			if tag == nil {
				return fmt.Errorf("no chunk tagged %q in %s", args[1], args[0])
			}
			data, _ := asset.GetChunkData(*tag)
			if outPath == "" {
				_, err := os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(outPath, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the payload to this path instead of stdout")
	return cmd
}
