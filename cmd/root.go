/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gmaffy/genome-batch/pipeline"
	"github.com/gmaffy/genome-batch/utils"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "genome-batch",
	Short: "Resumable batch annotation and QC of bacterial genome assemblies",
	Long: `Runs one pipeline stage per subcommand over a directory of assemblies:
1.	Annotation: (bakta)
2.	Cleanup: archive annotation output as .tar.xz, keep .gbff and .faa
3.	Completeness: (BUSCO)
4.	Secondary metabolites: (antiSMASH)
5.	Sample renaming from a spreadsheet
6.	Other utils

Every stage skips genomes that are already done, so it is safe to re-run.
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var cfgFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().IntP("threads", "t", 0, "threads passed to the external tools (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (overrides config)")
}

// loadConfig merges defaults, the config file, GENOME_BATCH_* variables and flags.
func loadConfig(cmd *cobra.Command) (utils.Config, error) {
	v := utils.NewViper()
	if err := v.BindPFlag("threads", cmd.Flags().Lookup("threads")); err != nil {
		return utils.Config{}, err
	}
	if err := v.BindPFlag("log_level", cmd.Flags().Lookup("log-level")); err != nil {
		return utils.Config{}, err
	}
	return utils.ReadConfigWith(v, cfgFile)
}

// stageContext is cancelled on Ctrl-C / SIGTERM; the runner stops between genomes.
func stageContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

type stageBuilder func(cfg utils.Config, runner utils.ToolRunner, logger *utils.Logger) pipeline.Stage

// runStage loads config, opens the stage log file and runs the stage to completion.
func runStage(cmd *cobra.Command, name string, logPath func(utils.Config) string, build stageBuilder) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	level, err := utils.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Error parsing log level: %v", err)
	}
	logger, err := utils.NewLogger(logPath(cfg), name, level)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer logger.Close()

	ctx, cancel := stageContext(cmd)
	defer cancel()

	runner := utils.ExecRunner{Timeout: cfg.ToolTimeout}
	stage := build(cfg, runner, logger)

	logger.Info(fmt.Sprintf("Starting %s", name), "config", cfgFile, "threads", cfg.Threads)
	summary, err := pipeline.NewRunner(logger.Logger).Run(ctx, stage)
	if err != nil {
		logger.Error("Stage failed", "error", err)
		logger.Close()
		log.Fatalf("%s failed: %v", name, err)
	}
	if summary.Failed > 0 {
		logger.Warn("Some genomes failed; re-run to retry them", "failed", summary.Failed)
	}
}
