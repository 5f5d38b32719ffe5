package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/songscout/internal/discovery"
)

var (
	discoverMode      string
	discoverLimit     int
	discoverNoEnrich  bool
	discoverNoProcess bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a discovery cycle to find new songs",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initService(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Service.RunCycle(cmd.Context(), discovery.CycleOptions{
			Mode:    discoverMode,
			Limit:   discoverLimit,
			Enrich:  !discoverNoEnrich,
			Process: !discoverNoProcess,
		})
		if err != nil {
			return err
		}

		fmt.Println(renderTable([]string{"Metric", "Value"}, [][]string{
			{"Requests scraped", fmt.Sprint(result.Cycle.RequestsScraped)},
			{"Songs found", fmt.Sprint(result.Cycle.SongsFound)},
			{"Total requests", fmt.Sprint(result.Stats.TotalRequests)},
			{"Total songs", fmt.Sprint(result.Stats.TotalSongs)},
			{"Solve rate", fmt.Sprintf("%.1f%%", result.Stats.SolveRate*100)},
		}))
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVarP(&discoverMode, "mode", "m", "solved", "scrape mode: new, hot, or solved")
	discoverCmd.Flags().IntVarP(&discoverLimit, "limit", "l", 100, "max threads per group")
	discoverCmd.Flags().BoolVar(&discoverNoEnrich, "no-enrich", false, "skip description extraction")
	discoverCmd.Flags().BoolVar(&discoverNoProcess, "no-process", false, "skip processing solved requests")
	rootCmd.AddCommand(discoverCmd)
}
