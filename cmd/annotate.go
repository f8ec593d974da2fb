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

// annotateCmd represents the annotate command
var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Annotates every assembly in source_dir with bakta",
	Long: `Runs bakta once per <genus>_<species>_<strain>.fa.gz in source_dir.

Genus, species, strain and locus tag are taken from the file name. Genomes whose
<annotation_root>/<stem>/<stem>.gbff already exists are skipped; a half-written
output directory is removed and the genome annotated again.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStage(cmd, "bakta", utils.Config.AnnotationLog,
			func(cfg utils.Config, runner utils.ToolRunner, logger *utils.Logger) pipeline.Stage {
				return annotation.NewBaktaStage(cfg, runner, logger.Logger)
			})
	},
}

func init() {
	rootCmd.AddCommand(annotateCmd)
}
