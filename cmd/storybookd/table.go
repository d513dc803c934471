package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// Run ids are 22 characters (date, time, hex suffix); pinning the column
// keeps back-to-back listings from shifting as runs are evicted.
const runIDColumnWidth = 22

// renderTable renders rows with the CLI's shared table conventions: rounded
// borders, left-aligned headers, short rows padded with empty cells, and the
// RUN column held at the run-id width.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	configs := make([]table.ColumnConfig, len(headers))
	for i, name := range headers {
		header[i] = name
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
		if name == "RUN" {
			configs[i].WidthMin = runIDColumnWidth
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		cells := make(table.Row, len(headers))
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = row[i]
			}
		}
		tw.AppendRow(cells)
	}

	return tw.Render()
}

// statusCell colors terminal status values; piped output stays plain.
func statusCell(status string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return status
	}
	switch status {
	case "DONE":
		return text.FgGreen.Sprint(status)
	case "FAILED":
		return text.FgRed.Sprint(status)
	case "RUNNING":
		return text.FgCyan.Sprint(status)
	default:
		return status
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
