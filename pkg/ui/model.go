package ui

import (
	"fmt"
	"strings"
	"time"

	"tierlock/pkg/locking/monitor"
	"tierlock/pkg/ui/base"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 250 * time.Millisecond

// Model represents the dashboard state
type Model struct {
	stats        *monitor.CounterGroup
	status       func() string
	counterTable table.Model
	spinner      spinner.Model
	help         help.Model

	width    int
	height   int
	paused   bool
	showZero bool
	showHelp bool

	samples  []monitor.CounterSample
	baseline map[string]int64
	started  time.Time
	keys     keyMap
}

// NewModel builds a dashboard over a live counter group. The status
// callback supplies the workload line for the status bar and may be nil.
func NewModel(stats *monitor.CounterGroup, status func() string) Model {
	t := table.New(
		table.WithColumns(counterColumns(60)),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(16),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(primaryColor).
		BorderBottom(true).
		Bold(true).
		Foreground(primaryColor)
	s.Selected = s.Selected.
		Foreground(bgDark).
		Background(palette.Secondary).
		Bold(false)
	t.SetStyles(s)

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		stats:        stats,
		status:       status,
		counterTable: t,
		spinner:      sp,
		help:         help.New(),
		keys:         keys,
		baseline:     make(map[string]int64),
		started:      time.Now(),
	}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused

		case key.Matches(msg, m.keys.Rebase):
			for _, s := range m.samples {
				m.baseline[s.Path] = s.Value
			}
			m.refreshRows()

		case key.Matches(msg, m.keys.ToggleZero):
			m.showZero = !m.showZero
			m.refreshRows()

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp

		default:
			var cmd tea.Cmd
			m.counterTable, cmd = m.counterTable.Update(msg)
			return m, cmd
		}

	case tickMsg:
		if !m.paused {
			m.samples = m.stats.Snapshot()
			m.refreshRows()
		}
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.counterTable.View())
	sections = append(sections, m.renderStatusBar())

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	}

	return appStyle.Render(strings.Join(sections, "\n"))
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("tierlock monitor paths")
	badge := groupBadgeStyle.Render(m.stats.Name())

	enters, exits := m.totals()
	totals := totalsStyle.Render(fmt.Sprintf("enters: %s | exits: %s",
		base.FormatCount(enters), base.FormatCount(exits)))

	parts := []string{title, "  ", badge, "  ", totals}
	if m.paused {
		parts = append(parts, "  ", pausedBadgeStyle.Render("PAUSED"))
	} else {
		parts = append(parts, "  ", m.spinner.View())
	}
	header := lipgloss.JoinHorizontal(lipgloss.Left, parts...)

	separatorWidth := m.width - 4
	if separatorWidth < 0 {
		separatorWidth = 0
	}
	separator := lipgloss.NewStyle().
		Foreground(bgLight).
		Render(strings.Repeat("─", separatorWidth))

	return header + "\n" + separator
}

func (m Model) renderStatusBar() string {
	uptime := time.Since(m.started).Round(time.Second)
	content := lipgloss.NewStyle().
		Foreground(accentColor).
		Render(fmt.Sprintf("● up %v", uptime))

	if m.status != nil {
		content += lipgloss.NewStyle().
			Foreground(textSecondary).
			Render(" | " + m.status())
	}
	content += lipgloss.NewStyle().
		Foreground(textMuted).
		Render(" | press ? for help")

	return statusBarStyle.
		Width(base.Max(m.width-4, 0)).
		Render(content)
}

func (m Model) renderHelp() string {
	helpText := m.help.FullHelpView([][]key.Binding{
		{
			m.keys.Pause,
			m.keys.Rebase,
			m.keys.ToggleZero,
			m.keys.ScrollUp,
			m.keys.ScrollDown,
			m.keys.Help,
			m.keys.Quit,
		},
	})
	return helpOverlayStyle.Render(helpText)
}

// totals sums the enter and exit completion tags; shared sub-path tags
// such as revocations are excluded so each operation counts once.
func (m Model) totals() (enters, exits int64) {
	for _, s := range m.samples {
		switch {
		case strings.HasPrefix(s.Path, "lock{"):
			enters += s.Value
		case strings.HasPrefix(s.Path, "unlock{"):
			exits += s.Value
		}
	}
	return enters, exits
}

func (m *Model) refreshRows() {
	byPath := make(map[string]int64, len(m.samples))
	for _, s := range m.samples {
		byPath[s.Path] = s.Value
	}

	paths := monitor.AllPaths()
	rows := make([]table.Row, 0, len(paths))
	for _, path := range paths {
		value := byPath[path]
		if value == 0 && !m.showZero {
			continue
		}
		delta := value - m.baseline[path]
		rows = append(rows, table.Row{
			path,
			base.FormatCount(value),
			base.FormatCount(delta),
		})
	}
	m.counterTable.SetRows(rows)
}

func counterColumns(width int) []table.Column {
	pathWidth := base.Max(width-28, 24)
	return []table.Column{
		{Title: "Path", Width: pathWidth},
		{Title: "Count", Width: 12},
		{Title: "Δ", Width: 12},
	}
}

// updateLayout adjusts component sizes based on window size
func (m *Model) updateLayout() {
	m.counterTable.SetColumns(counterColumns(m.width - 8))
	tableHeight := m.height - 8
	if tableHeight < 5 {
		tableHeight = 5
	}
	m.counterTable.SetHeight(tableHeight)
}
