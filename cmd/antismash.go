/*
Copyright © 2025 Godwin Mafireyi <mafireyi@gmail.com>
*/
package cmd

import (
	"github.com/gmaffy/genome-batch/metabolites"
	"github.com/gmaffy/genome-batch/pipeline"
	"github.com/gmaffy/genome-batch/utils"

	"github.com/spf13/cobra"
)

// antismashCmd represents the antismash command
var antismashCmd = &cobra.Command{
	Use:   "antismash",
	Short: "Finds biosynthetic gene clusters in every annotated genome with antiSMASH",
	Long: `Runs antiSMASH on each <annotation_root>/*/*.gbff and keeps only the result
zip of each genome in antismash.out_dir. Genomes whose zip is already there are skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStage(cmd, "antismash", utils.Config.AntismashLog,
			func(cfg utils.Config, runner utils.ToolRunner, logger *utils.Logger) pipeline.Stage {
				return metabolites.NewAntismashStage(cfg, runner, logger.Logger)
			})
	},
}

func init() {
	rootCmd.AddCommand(antismashCmd)
}
