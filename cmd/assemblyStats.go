/*
Copyright © 2025 Godwin Mafireyi <mafireyi@gmail.com>
*/
package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/gmaffy/genome-batch/assembly"

	"github.com/spf13/cobra"
)

// assemblyStatsCmd represents the assemblyStats command
var assemblyStatsCmd = &cobra.Command{
	Use:   "assemblyStats [fasta ...]",
	Short: "Contig count, length, N50 and GC of assemblies",
	Long: `Prints one tab-separated row per assembly. Without arguments every
<source_ext> file in source_dir is measured. Gzipped FASTA is read directly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}

		paths := args
		if len(paths) == 0 {
			paths, err = filepath.Glob(filepath.Join(cfg.SourceDir, "*"+cfg.SourceExt))
			if err != nil {
				log.Fatalf("Error listing %s: %v", cfg.SourceDir, err)
			}
			sort.Strings(paths)
		}
		if len(paths) == 0 {
			log.Fatalf("No assemblies found")
		}

		stats, err := assembly.ReadAll(cmd.Context(), paths, cfg.Threads)
		if err != nil {
			log.Fatalf("Error reading assemblies: %v", err)
		}

		out, oErr := cmd.Flags().GetString("output")
		if oErr != nil {
			log.Fatalf("Error getting output flag: %v", oErr)
		}
		if out == "" {
			if err := assembly.WriteTSV(os.Stdout, stats); err != nil {
				log.Fatalf("Error writing stats: %v", err)
			}
			return
		}
		if err := assembly.WriteTSVFile(out, stats); err != nil {
			log.Fatalf("Error writing stats: %v", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %d assemblies to %s\n", len(stats), out)
	},
}

func init() {
	rootCmd.AddCommand(assemblyStatsCmd)

	assemblyStatsCmd.Flags().StringP("output", "o", "", "write the table here instead of stdout")
}
