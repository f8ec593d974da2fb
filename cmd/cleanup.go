/*
Copyright © 2025 Godwin Mafireyi <mafireyi@gmail.com>
*/
package cmd

import (
	"github.com/gmaffy/genome-batch/annotation"
	"github.com/gmaffy/genome-batch/pipeline"
	"github.com/gmaffy/genome-batch/utils"

	"github.com/spf13/cobra"
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Archives each bakta output directory and keeps only .gbff and .faa",
	Long: `For every directory under annotation_root:

1. packs all files into <dir>_bakta.tar.xz, unless that archive already exists
2. deletes everything except the archive and the cleanup.keep extensions`,
	Run: func(cmd *cobra.Command, args []string) {
		runStage(cmd, "cleanup", utils.Config.CleanupLog,
			func(cfg utils.Config, _ utils.ToolRunner, logger *utils.Logger) pipeline.Stage {
				return annotation.NewCleanupStage(cfg, logger.Logger)
			})
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
