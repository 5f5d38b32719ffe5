package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var songsLimit int

var songsCmd = &cobra.Command{
	Use:   "songs",
	Short: "List discovered songs, ordered by how often they were sought",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		songs, err := st.TopSongs(cmd.Context(), songsLimit)
		if err != nil {
			return err
		}
		if len(songs) == 0 {
			fmt.Println("No songs discovered yet. Run 'songscout discover' first.")
			return nil
		}

		fmt.Println(renderSongs(songs))
		return nil
	},
}

func init() {
	songsCmd.Flags().IntVarP(&songsLimit, "limit", "l", 20, "max results")
	rootCmd.AddCommand(songsCmd)
}
