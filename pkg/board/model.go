package board

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/millrun/millrun/pkg/engine"
)

// DefaultRefreshInterval is how often the board reloads state.
const DefaultRefreshInterval = 3 * time.Second

// Loader fetches the current plant state. stores.Store.Load satisfies it.
type Loader func(ctx context.Context) (*engine.Snapshot, error)

type pane int

const (
	paneStages pane = iota
	paneEquipment
)

type snapshotMsg struct {
	snap *engine.Snapshot
	err  error
	at   time.Time
}

type tickMsg time.Time

// Model is the live floor board. It polls the store, so it shows changes
// made by any millrun process sharing the database.
type Model struct {
	ctx      context.Context
	load     Loader
	interval time.Duration
	now      func() time.Time

	snap    *engine.Snapshot
	err     error
	updated time.Time

	pane      pane
	stages    table.Model
	equipment table.Model
	width     int
	height    int
}

// New creates a board model.
func New(ctx context.Context, load Loader, interval time.Duration) *Model {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(borderColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#5B8DEF")).
		Bold(false)

	stages := table.New(
		table.WithColumns([]table.Column{
			{Title: "ORDER", Width: 12},
			{Title: "STAGE", Width: 20},
			{Title: "STATUS", Width: 12},
			{Title: "EQUIPMENT", Width: 12},
			{Title: "START", Width: 12},
			{Title: "END", Width: 12},
			{Title: "NOTE", Width: 24},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	stages.SetStyles(styles)

	equipment := table.New(
		table.WithColumns([]table.Column{
			{Title: "EQUIPMENT", Width: 14},
			{Title: "TYPE", Width: 12},
			{Title: "STATUS", Width: 12},
			{Title: "RUNNING", Width: 20},
			{Title: "BOOKED", Width: 12},
		}),
		table.WithHeight(15),
	)
	equipment.SetStyles(styles)

	return &Model{
		ctx:       ctx,
		load:      load,
		interval:  interval,
		now:       time.Now,
		stages:    stages,
		equipment: equipment,
	}
}

// Init starts the first load and the refresh timer.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.tick())
}

func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.load(m.ctx)
		return snapshotMsg{snap: snap, err: err, at: m.now()}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles input, window size changes and refreshed state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			m.switchPane()
			return m, nil
		case "r":
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h := max(5, msg.Height-8)
		m.stages.SetHeight(h)
		m.equipment.SetHeight(h)
		return m, nil

	case snapshotMsg:
		m.updated = msg.at
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
			m.setRows()
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())
	}

	var cmd tea.Cmd
	if m.pane == paneStages {
		m.stages, cmd = m.stages.Update(msg)
	} else {
		m.equipment, cmd = m.equipment.Update(msg)
	}
	return m, cmd
}

func (m *Model) switchPane() {
	if m.pane == paneStages {
		m.pane = paneEquipment
		m.stages.Blur()
		m.equipment.Focus()
	} else {
		m.pane = paneStages
		m.equipment.Blur()
		m.stages.Focus()
	}
}

func (m *Model) setRows() {
	var stageRows []table.Row
	for _, r := range StageRows(m.snap) {
		stageRows = append(stageRows, table.Row{r.OrderID, r.StageID, r.Status, r.Equipment, r.Start, r.End, r.Note})
	}
	m.stages.SetRows(stageRows)

	var eqRows []table.Row
	for _, r := range EquipmentRows(m.snap, m.updated) {
		eqRows = append(eqRows, table.Row{r.ID, r.Type, r.Status, r.Current, r.Booked})
	}
	m.equipment.SetRows(eqRows)
}

// View renders the board.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("MILLRUN · floor board"))
	b.WriteString("\n")
	b.WriteString(m.summary())
	b.WriteString("\n\n")

	if m.pane == paneStages {
		b.WriteString(m.stages.View())
	} else {
		b.WriteString(m.equipment.View())
	}
	b.WriteString("\n")

	footer := "tab switch view · ↑/↓ scroll · r refresh · q quit"
	if !m.updated.IsZero() {
		footer = fmt.Sprintf("updated %s · %s", m.updated.Format("15:04:05"), footer)
	}
	if m.err != nil {
		b.WriteString(StatusStyle(string(engine.StageStatusFailed)).Render("load failed: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(footer))
	return b.String()
}

// summary counts stages by status.
func (m *Model) summary() string {
	if m.snap == nil {
		return dimStyle.Render("loading...")
	}

	counts := make(map[engine.StageStatus]int)
	for _, p := range m.snap.Plans {
		for _, st := range p.Stages {
			counts[st.Status]++
		}
	}

	parts := []string{fmt.Sprintf("%d orders", len(m.snap.Orders))}
	for _, s := range []engine.StageStatus{
		engine.StageStatusPending,
		engine.StageStatusBlocked,
		engine.StageStatusScheduled,
		engine.StageStatusInProgress,
		engine.StageStatusCompleted,
		engine.StageStatusFailed,
	} {
		parts = append(parts, StatusStyle(string(s)).Render(fmt.Sprintf("%d %s", counts[s], s)))
	}
	return strings.Join(parts, "  ")
}
