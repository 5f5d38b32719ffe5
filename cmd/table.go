package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sells-group/songscout/internal/model"
)

func renderTable(headers []string, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, c := range row {
			r[i] = c
		}
		tw.AppendRow(r)
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: len(headers), Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}

func renderSongs(songs []model.Song) string {
	rows := make([][]string, 0, len(songs))
	for _, s := range songs {
		year := ""
		if s.Year > 0 {
			year = fmt.Sprint(s.Year)
		}
		rows = append(rows, []string{s.Artist, s.Title, s.Album, year, fmt.Sprint(s.DiscoveryCount)})
	}
	return renderTable([]string{"Artist", "Title", "Album", "Year", "Sought"}, rows)
}

func renderRequests(reqs []model.Request) string {
	rows := make([][]string, 0, len(reqs))
	for _, r := range reqs {
		title := r.Title
		if runes := []rune(title); len(runes) > 70 {
			title = string(runes[:67]) + "..."
		}
		rows = append(rows, []string{r.ID, r.SourceGroup, title, strings.ToUpper(string(r.Status)), fmt.Sprint(r.Score)})
	}
	return renderTable([]string{"ID", "Group", "Title", "Status", "Score"}, rows)
}
