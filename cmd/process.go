package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var processLimit int

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process stored solved requests to extract song identifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initService(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		found := env.Service.ProcessSolved(cmd.Context(), processLimit)
		fmt.Printf("Discovered %d new songs\n", found)
		return nil
	},
}

func init() {
	processCmd.Flags().IntVarP(&processLimit, "limit", "l", 50, "max solved requests to process")
	rootCmd.AddCommand(processCmd)
}
