package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
)

var (
	exportOutput string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the song catalog to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		songs, err := st.TopSongs(cmd.Context(), exportLimit)
		if err != nil {
			return err
		}

		file := xlsx.NewFile()
		sheet, err := file.AddSheet("Songs")
		if err != nil {
			return eris.Wrap(err, "export: add sheet")
		}

		header := sheet.AddRow()
		for _, h := range []string{"ID", "Artist", "Title", "Album", "Year", "Discovery Count", "Discovered At"} {
			header.AddCell().Value = h
		}

		for _, s := range songs {
			row := sheet.AddRow()
			row.AddCell().Value = s.ID
			row.AddCell().Value = s.Artist
			row.AddCell().Value = s.Title
			row.AddCell().Value = s.Album
			if s.Year > 0 {
				row.AddCell().SetInt(s.Year)
			} else {
				row.AddCell()
			}
			row.AddCell().SetInt(s.DiscoveryCount)
			row.AddCell().Value = s.DiscoveredAt.Format("2006-01-02")
		}

		if err := file.Save(exportOutput); err != nil {
			return eris.Wrapf(err, "export: save %s", exportOutput)
		}

		fmt.Printf("Exported %d songs to %s\n", len(songs), exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "songs.xlsx", "output file path")
	exportCmd.Flags().IntVarP(&exportLimit, "limit", "l", 1000, "max songs to export")
	rootCmd.AddCommand(exportCmd)
}
