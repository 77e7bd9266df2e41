package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/loykin/recollsup/internal/query"
	"github.com/loykin/recollsup/pkg/client"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment, styled bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}
	tw := table.NewWriter()
	if styled {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleLight)
		tw.Style().Options = table.OptionsNoBordersAndSeparators
	}
	header := make(table.Row, columns)
	for i := range header {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func renderRecords(recs []query.Record, root string, styled bool) string {
	if len(recs) == 0 {
		return "no results"
	}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.Relevance,
			r.Name,
			r.RelativeTo(root),
			formatTime(r.Modified),
			strings.Join(query.CleanTags(r.Tags), ","),
		})
	}
	return renderTable(
		[]string{"Relevance", "Name", "Path", "Modified", "Tags"},
		rows,
		[]columnAlignment{alignRight},
		styled,
	)
}

func renderStatus(st client.DaemonStatus) string {
	state := "stopped"
	switch {
	case st.Running:
		state = "running"
	case st.Failed:
		state = "failed"
	}
	rows := [][]string{
		{"State", state},
		{"PID", pidString(st.PID)},
		{"Started", formatTimePtr(st.StartedAt)},
		{"Attempts", fmt.Sprintf("%d/%d", st.Attempts, st.MaxAttempts)},
		{"Args", strings.Join(st.Extra, " ")},
		{"Host key", st.HostKey},
	}
	if st.Failure != "" {
		rows = append(rows, []string{"Last failure", st.Failure})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil, true)
}

func renderHistory(events []client.HistoryEvent) string {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			formatTime(e.OccurredAt),
			e.Type,
			pidString(e.Record.PID),
			e.Record.Outcome,
			e.Record.Error,
		})
	}
	return renderTable([]string{"Time", "Event", "PID", "Outcome", "Error"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}, true)
}

func renderChecks(results []checkResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		rows = append(rows, []string{r.Name, r.Value, status})
	}
	return renderTable([]string{"Check", "Value", "Status"}, rows, nil, true)
}

func pidString(pid int) string {
	if pid == 0 {
		return "-"
	}
	return fmt.Sprint(pid)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}
