package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable draws rows under headers in the rounded style. Headers keep
// the case they were given; short rows are padded with empty cells.
func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}
	tw := newTableWriter(table.StyleRounded)
	tw.AppendHeader(toRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(toRow(row, len(headers)))
	}
	tw.SetColumnConfigs(columnConfigs(len(headers), aligns))
	return tw.Render()
}

// renderFields draws label/value pairs without a header, as used for the
// arm identity listing.
func renderFields(fields [][2]string) string {
	if len(fields) == 0 {
		return ""
	}
	tw := newTableWriter(table.StyleLight)
	for _, f := range fields {
		tw.AppendRow(table.Row{f[0], f[1]})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Colors: text.Colors{text.Bold}}})
	return tw.Render()
}

func newTableWriter(style table.Style) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(style)
	tw.Style().Format.Header = text.FormatDefault
	return tw
}

func toRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}

func columnConfigs(columns int, aligns []columnAlignment) []table.ColumnConfig {
	configs := make([]table.ColumnConfig, columns)
	for i := range configs {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	return configs
}
