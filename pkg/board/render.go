package board

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/millrun/millrun/pkg/engine"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	borderColor = lipgloss.Color("#444444")
)

// statusColors highlights statuses that need attention.
var statusColors = map[string]lipgloss.Color{
	string(engine.StageStatusBlocked):         "#FF6B6B",
	string(engine.StageStatusFailed):          "#FF6B6B",
	string(engine.StageStatusScheduled):       "#5B8DEF",
	string(engine.StageStatusInProgress):      "#F5A623",
	string(engine.StageStatusCompleted):       "#7ED321",
	string(engine.StageStatusCancelled):       "#888888",
	string(engine.OrderStatusInProduction):    "#F5A623",
	string(engine.EquipmentStatusBusy):        "#F5A623",
	string(engine.EquipmentStatusMaintenance): "#FF6B6B",
}

// StatusStyle returns the style used to render a status value.
func StatusStyle(status string) lipgloss.Style {
	if c, ok := statusColors[status]; ok {
		return lipgloss.NewStyle().Foreground(c)
	}
	return lipgloss.NewStyle()
}

// newTable builds a bordered table whose statusCol column is coloured by value.
func newTable(headers []string, rows [][]string, statusCol int) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == statusCol && row >= 0 && row < len(rows) {
				return StatusStyle(rows[row][col]).Padding(0, 1)
			}
			return cellStyle
		})
}

// RenderStatus renders the whole plant state as a set of tables.
func RenderStatus(snap *engine.Snapshot, now time.Time) string {
	var sections []string

	orders := OrderRows(snap)
	if len(orders) == 0 {
		sections = append(sections, titleStyle.Render("Orders"), dimStyle.Render("  no orders"))
	} else {
		rows := make([][]string, 0, len(orders))
		for _, r := range orders {
			rows = append(rows, []string{r.OrderID, r.Customer, r.Priority, r.Due, r.Status, r.Progress})
		}
		sections = append(sections, titleStyle.Render("Orders"),
			newTable([]string{"ORDER", "CUSTOMER", "PRIO", "DUE", "STATUS", "DONE"}, rows, 4).String())
	}

	if stages := StageRows(snap); len(stages) > 0 {
		rows := make([][]string, 0, len(stages))
		for _, r := range stages {
			rows = append(rows, []string{r.OrderID, r.StageID, r.Status, r.Equipment, r.Start, r.End, r.Note})
		}
		sections = append(sections, titleStyle.Render("Stages"),
			newTable([]string{"ORDER", "STAGE", "STATUS", "EQUIPMENT", "START", "END", "NOTE"}, rows, 2).String())
	}

	if equipment := EquipmentRows(snap, now); len(equipment) > 0 {
		rows := make([][]string, 0, len(equipment))
		for _, r := range equipment {
			rows = append(rows, []string{r.ID, r.Type, r.Status, r.Current, r.Booked})
		}
		sections = append(sections, titleStyle.Render("Equipment"),
			newTable([]string{"EQUIPMENT", "TYPE", "STATUS", "RUNNING", "BOOKED"}, rows, 2).String())
	}

	if materials := MaterialRows(snap); len(materials) > 0 {
		rows := make([][]string, 0, len(materials))
		for _, r := range materials {
			rows = append(rows, []string{r.ID, r.OnHand, r.Reserved, r.Available, r.Unit})
		}
		sections = append(sections, titleStyle.Render("Materials"),
			newTable([]string{"MATERIAL", "ON HAND", "RESERVED", "AVAILABLE", "UNIT"}, rows, -1).String())
	}

	return strings.Join(sections, "\n") + "\n"
}
