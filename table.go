package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/maastricht-university/audioscore/metrics"
	"github.com/maastricht-university/audioscore/orchestrator"
	"github.com/maastricht-university/audioscore/store"
)

var (
	accentColor = lipgloss.Color("#00A0B0")
	mutedColor  = lipgloss.Color("#888888")
	errorColor  = lipgloss.Color("#CC3333")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginTop(1)
	keyStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
	headStyle  = lipgloss.NewStyle().Bold(true).Foreground(accentColor).Padding(0, 1)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
	failStyle  = cellStyle.Foreground(errorColor)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(keyStyle).
		Headers(headers...)
}

// recordsTable renders one row per record with a column per score
// component, followed by an average row when the report has one.
func recordsTable(rep *orchestrator.Report) string {
	cols := orchestrator.Columns(rep.Records, rep.Metrics)
	headers := append([]string{"#", "input"}, cols...)
	headers = append(headers, "errors")

	var rows [][]string
	failed := map[int]bool{}
	for i, r := range rep.Records {
		flat := r.Flatten()
		row := []string{strconv.Itoa(r.Index), r.ID}
		for _, c := range cols {
			if v, ok := flat[c]; ok {
				row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
			} else {
				row = append(row, "-")
			}
		}
		row = append(row, errorSummary(r.Errors))
		if !r.OK() {
			failed[i] = true
		}
		rows = append(rows, row)
	}
	if len(rep.Average) > 0 {
		avg := map[string]float64{}
		for id, v := range rep.Average {
			for k, f := range v.Flatten(id) {
				avg[k] = f
			}
		}
		row := []string{"", "mean"}
		for _, c := range cols {
			row = append(row, strconv.FormatFloat(avg[c], 'f', -1, 64))
		}
		rows = append(rows, append(row, ""))
	}

	errCol := len(headers) - 1
	return newTable(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headStyle
			case col == errCol && failed[row]:
				return failStyle
			}
			return cellStyle
		}).
		String()
}

func errorSummary(errs map[string]*orchestrator.RequestError) string {
	if len(errs) == 0 {
		return ""
	}
	ids := make([]string, 0, len(errs))
	for id := range errs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id + ": " + errs[id].Kind()
	}
	return strings.Join(parts, ", ")
}

func metricsTable(ds []metrics.Descriptor) string {
	var rows [][]string
	for _, d := range ds {
		ref := "no"
		if d.RequiresReference {
			ref = "yes"
		}
		bounds := "-"
		if d.MinDuration > 0 || d.MaxDuration > 0 {
			bounds = fmt.Sprintf("%v..%v", d.MinDuration, d.MaxDuration)
		}
		rows = append(rows, []string{d.ID, ref, strconv.Itoa(d.SampleRate), bounds, strings.Join(d.Axes, ","), d.Description})
	}
	return newTable("metric", "reference", "rate", "duration", "axes", "description").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		}).
		String()
}

func historyTable(runs []store.RunSummary) string {
	var rows [][]string
	for _, r := range runs {
		rows = append(rows, []string{
			r.GeneratedAt.Local().Format("2006-01-02 15:04"),
			r.RunID,
			r.Kind,
			r.Input,
			strings.Join(r.Metrics, ","),
			fmt.Sprintf("%d/%d", r.Requests-r.Failed, r.Requests),
		})
	}
	return newTable("when", "run", "kind", "input", "metrics", "ok").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		}).
		String()
}
