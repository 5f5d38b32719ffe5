package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "Show a random discovered song",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		song, err := st.RandomSong(cmd.Context())
		if err != nil {
			return err
		}
		if song == nil {
			fmt.Println("No songs discovered yet. Run 'songscout discover' first.")
			return nil
		}

		fmt.Printf("%s - %s\n", song.Artist, song.Title)
		if song.Album != "" {
			fmt.Printf("  Album: %s\n", song.Album)
		}
		if song.Year > 0 {
			fmt.Printf("  Year: %d\n", song.Year)
		}
		fmt.Printf("  Sought %d time(s)\n", song.DiscoveryCount)
		for _, desc := range song.OriginalDescriptions {
			fmt.Printf("  How people described it: %s\n", desc)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(randomCmd)
}
