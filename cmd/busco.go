/*
Copyright © 2025 Godwin Mafireyi <mafireyi@gmail.com>
*/
package cmd

import (
	"github.com/gmaffy/genome-batch/pipeline"
	"github.com/gmaffy/genome-batch/quality"
	"github.com/gmaffy/genome-batch/utils"

	"github.com/spf13/cobra"
)

// buscoCmd represents the busco command
var buscoCmd = &cobra.Command{
	Use:   "busco",
	Short: "Checks proteome completeness of every annotated genome with BUSCO",
	Long: `Runs the following pipeline:

1. symlink every <annotation_root>/*/*.faa (except hypothetical proteins) into busco.faa_dir
2. busco in batch mode over busco.faa_dir, if any proteome has no summary yet
3. collect the summary JSON files and plot them with busco --plot
4. write busco_summary.tsv and busco_summary.html`,
	Run: func(cmd *cobra.Command, args []string) {
		runStage(cmd, "busco", utils.Config.BuscoLog,
			func(cfg utils.Config, runner utils.ToolRunner, logger *utils.Logger) pipeline.Stage {
				return quality.NewBuscoStage(cfg, runner, logger.Logger)
			})
	},
}

func init() {
	rootCmd.AddCommand(buscoCmd)
}
