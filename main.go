/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/gmaffy/genome-batch/cmd"

func main() {
	cmd.Execute()
}
