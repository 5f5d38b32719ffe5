package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var openLimit int

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "List open song identification requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		reqs, err := st.OpenRequests(cmd.Context(), openLimit)
		if err != nil {
			return err
		}
		if len(reqs) == 0 {
			fmt.Println("No open requests stored.")
			return nil
		}

		fmt.Println(renderRequests(reqs))
		return nil
	},
}

func init() {
	openCmd.Flags().IntVarP(&openLimit, "limit", "l", 50, "max requests")
	rootCmd.AddCommand(openCmd)
}
