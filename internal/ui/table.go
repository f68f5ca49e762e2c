package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/placements/internal/formatter"
	"github.com/desertthunder/placements/internal/models"
)

// Table renders rows under headers with a rounded border and a highlighted header row.
func Table(headers []string, rows [][]string) string {
	header := styles.title.MarginBottom(0).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.help).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// RunsTable lists runs most recent first.
func RunsTable(runs []models.RunSummary) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.Sequence),
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			string(r.Status),
			r.Source,
			r.Reference,
			fmt.Sprintf("%d/%d", r.Records, r.Total),
		})
	}
	return Table([]string{"#", "ID", "Started", "Status", "Source", "Reference", "Records"}, rows)
}

// RecordsTable renders the simplified projection.
func RecordsTable(records []models.SimplifiedRecord) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, formatter.SimplifiedRow(r))
	}
	return Table(formatter.SimplifiedHeaders, rows)
}
