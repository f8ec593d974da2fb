/*
Copyright © 2025 Godwin Mafireyi <mafireyi@gmail.com>
*/
package cmd

import (
	"fmt"
	"log"

	"github.com/gmaffy/genome-batch/utils"

	"github.com/spf13/cobra"
)

// initConfigCmd represents the initConfig command
var initConfigCmd = &cobra.Command{
	Use:   "initConfig [path]",
	Short: "Writes a config file with every setting at its default",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "genome-batch.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, fErr := cmd.Flags().GetBool("force")
		if fErr != nil {
			log.Fatalf("Error getting force flag: %v", fErr)
		}
		if err := utils.WriteConfig(path, utils.DefaultConfig(), force); err != nil {
			log.Fatalf("Error writing config: %v", err)
		}
		fmt.Printf("Wrote %s\n", path)
	},
}

func init() {
	rootCmd.AddCommand(initConfigCmd)

	initConfigCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")
}
