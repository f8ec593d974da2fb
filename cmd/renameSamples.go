/*
Copyright © 2025 Godwin Mafireyi <mafireyi@gmail.com>
*/
package cmd

import (
	"log"
	"log/slog"
	"os"

	"github.com/gmaffy/genome-batch/samplesheet"
	"github.com/gmaffy/genome-batch/utils"

	"github.com/spf13/cobra"
)

// renameSamplesCmd represents the renameSamples command
var renameSamplesCmd = &cobra.Command{
	Use:   "renameSamples",
	Short: "Symlinks provider-named assemblies under the lab's strain names",
	Long: `Reads a two-column spreadsheet (provider sample prefix, strain ID) and creates
<link_prefix>_<strain><ext> symlinks to the matching assemblies.

Prefixes matching no file or several files, and strain names used twice, are
written to the exceptions report; every link made goes to the rename list.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		rc := cfg.Rename
		if sheet, _ := cmd.Flags().GetString("spreadsheet"); sheet != "" {
			rc.Spreadsheet = sheet
		}
		if rc.Spreadsheet == "" || rc.SourceDir == "" {
			log.Fatalf("rename.spreadsheet and rename.source_dir must be set")
		}

		level, err := utils.ParseLevel(cfg.LogLevel)
		if err != nil {
			log.Fatalf("Error parsing log level: %v", err)
		}
		logger := utils.NewWriterLogger(os.Stderr, "rename", level)

		rows, err := samplesheet.ReadSheet(rc.Spreadsheet, rc.Sheet)
		if err != nil {
			log.Fatalf("Error reading spreadsheet: %v", err)
		}
		logger.Info("Read spreadsheet", "file", rc.Spreadsheet, "rows", len(rows))

		res, err := samplesheet.NewRenamer(rc, logger.Logger).Apply(rows)
		if err != nil {
			log.Fatalf("Error creating symlinks: %v", err)
		}
		if err := samplesheet.WriteReports(res, rc.Exceptions, rc.RenameList); err != nil {
			log.Fatalf("Error writing reports: %v", err)
		}
		logger.Info("Done",
			slog.Int("links", len(res.Links)),
			slog.Int("exceptions", len(res.Exceptions)),
			slog.String("exceptions_file", rc.Exceptions),
			slog.String("rename_list", rc.RenameList))
	},
}

func init() {
	rootCmd.AddCommand(renameSamplesCmd)

	renameSamplesCmd.Flags().StringP("spreadsheet", "s", "", "xlsx file mapping sample prefixes to strain IDs (overrides rename.spreadsheet)")
}
