package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the catalog by song title or artist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		songs, err := st.SearchSongs(cmd.Context(), args[0], searchLimit)
		if err != nil {
			return err
		}
		if len(songs) == 0 {
			fmt.Printf("No songs matching %q\n", args[0])
			return nil
		}

		fmt.Println(renderSongs(songs))
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 20, "max results")
	rootCmd.AddCommand(searchCmd)
}
