package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(cmd.Context())
		if err != nil {
			return err
		}

		p := message.NewPrinter(language.English)
		fmt.Println(renderTable([]string{"Metric", "Value"}, [][]string{
			{"Total requests", p.Sprintf("%d", stats.TotalRequests)},
			{"Solved requests", p.Sprintf("%d", stats.SolvedRequests)},
			{"Unsolved requests", p.Sprintf("%d", stats.UnsolvedRequests)},
			{"Solve rate", fmt.Sprintf("%.1f%%", stats.SolveRate*100)},
			{"Distinct songs", p.Sprintf("%d", stats.TotalSongs)},
		}))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
