// Command cli is a terminal dashboard showing live per-port DMX/RDM
// activity: frames/sec, table-of-devices size, and the most recent
// discovery duration, for every port configured via internal/config.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"openrdm/internal/config"
	"openrdm/internal/diagnostics"
	"openrdm/internal/port"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFFF00")).
			Bold(true).
			Padding(0, 1)

	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)
)

const refreshInterval = 500 * time.Millisecond

var tableColumns = []table.Column{
	{Title: "Port", Width: 24},
	{Title: "Status", Width: 8},
	{Title: "FPS", Width: 8},
	{Title: "TOD", Width: 6},
	{Title: "Lost", Width: 6},
	{Title: "Proxies", Width: 8},
	{Title: "Last Discovery", Width: 16},
}

type model struct {
	ports    []*port.Port
	sampler  *diagnostics.Sampler
	snapshot diagnostics.Result
	lastErr  string
	table    table.Model
}

type tickMsg time.Time

type snapshotMsg diagnostics.Result

func main() {
	cfg, err := config.LoadDeviceConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cli: load config: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Ports) == 0 {
		fmt.Fprintln(os.Stderr, "cli: no ports configured")
		os.Exit(1)
	}

	m := model{
		sampler: diagnostics.NewSampler(),
		table: table.New(
			table.WithColumns(tableColumns),
			table.WithFocused(false),
			table.WithHeight(len(cfg.Ports)+1),
		),
	}
	for i, pc := range cfg.Ports {
		p, err := port.Open(pc, cfg.Verbose, cfg.RDMDebug)
		if err != nil {
			m.lastErr = fmt.Sprintf("port %d (%s): %v", i, pc.Descriptor, err)
		}
		m.ports = append(m.ports, p)
	}
	defer func() {
		for _, p := range m.ports {
			p.Close()
		}
	}()

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "cli: %v\n", err)
		os.Exit(1)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), m.refreshSnapshot())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) refreshSnapshot() tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(m.sampler.Snapshot(m.ports))
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(tick(), m.refreshSnapshot())
	case snapshotMsg:
		m.snapshot = diagnostics.Result(msg)
		m.table.SetRows(rowsFor(m.snapshot))
		return m, nil
	}
	return m, nil
}

func rowsFor(snapshot diagnostics.Result) []table.Row {
	rows := make([]table.Row, 0, len(snapshot.Ports))
	for _, p := range snapshot.Ports {
		status := "up"
		if !p.Initialized {
			status = "down"
		}
		rows = append(rows, table.Row{
			p.Descriptor,
			status,
			fmt.Sprintf("%.1f", p.FPSEstimate),
			fmt.Sprintf("%d", p.TODSize),
			fmt.Sprintf("%d", p.LostSize),
			fmt.Sprintf("%d", p.ProxiesSize),
			fmt.Sprintf("%dms", p.LastDiscoveryMS),
		})
	}
	return rows
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(" openrdm dashboard "))
	b.WriteString("\n\n")

	host := m.snapshot.Host
	b.WriteString(dimStyle.Render(fmt.Sprintf(
		"host: %s/%s  cpu %.1f%%  mem %.1f%%\n\n",
		host.OS, host.Platform, host.CPUPercent, host.MemUsedPercent)))

	if m.lastErr != "" {
		b.WriteString(warnStyle.Render("open error: "+m.lastErr) + "\n\n")
	}

	if len(m.snapshot.Ports) == 0 {
		b.WriteString(dimStyle.Render("no ports reporting yet\n"))
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q to quit"))
	return b.String()
}
