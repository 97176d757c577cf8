package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const pollInterval = 3 * time.Second

// Model is the BubbleTea model for the watch console.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health    healthMsg
	stats     statsMsg
	connected bool
	lastCheck time.Time
	lastError string

	spinner spinner.Model
	letters table.Model
	theme   Theme
}

// New creates the watch console model.
func New(apiURL, apiKey string) *Model {
	theme := NewDefaultTheme()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Highlight

	columns := []table.Column{
		{Title: "Delivery", Width: 24},
		{Title: "Event", Width: 12},
		{Title: "Attempts", Width: 8},
		{Title: "Reason", Width: 40},
		{Title: "Dead-lettered", Width: 20},
	}
	letters := table.New(
		table.WithColumns(columns),
		table.WithHeight(10),
		table.WithFocused(true),
	)

	return &Model{
		apiURL:  apiURL,
		apiKey:  apiKey,
		spinner: sp,
		letters: letters,
		theme:   theme,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchHealth(m.apiURL, m.apiKey),
		fetchStats(m.apiURL, m.apiKey),
		fetchDeadLetters(m.apiURL, m.apiKey),
		tea.Tick(pollInterval, func(t time.Time) tea.Msg { return pollMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, tea.Batch(
				fetchHealth(m.apiURL, m.apiKey),
				fetchStats(m.apiURL, m.apiKey),
				fetchDeadLetters(m.apiURL, m.apiKey),
			)
		}
		var cmd tea.Cmd
		m.letters, cmd = m.letters.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case pollMsg:
		return m, tea.Batch(
			fetchHealth(m.apiURL, m.apiKey),
			fetchStats(m.apiURL, m.apiKey),
			fetchDeadLetters(m.apiURL, m.apiKey),
			tea.Tick(pollInterval, func(t time.Time) tea.Msg { return pollMsg(t) }),
		)

	case healthMsg:
		m.health = msg
		m.connected = true
		m.lastCheck = time.Now()
		m.lastError = ""

	case statsMsg:
		m.stats = msg

	case deadLettersMsg:
		rows := make([]table.Row, 0, len(msg))
		for _, d := range msg {
			rows = append(rows, table.Row{
				d.DeliveryID,
				d.EventType,
				fmt.Sprintf("%d", d.Attempts),
				d.FailureReason,
				d.DeadLetteredAt.Local().Format("15:04:05 Jan 02"),
			})
		}
		m.letters.SetRows(rows)

	case errMsg:
		m.connected = false
		m.lastError = msg.Error()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()
	stats := m.renderStats()
	letters := m.theme.Border.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Header.Render(" Dead Letters"),
			m.letters.View(),
		),
	)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ! %s", m.lastError))
	}

	help := m.theme.Dim.Render(" [q] Quit  [r] Refresh  [up/down] Scroll dead letters")

	parts := []string{header, stats, letters}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	status := m.theme.StatusFailed.Render("disconnected")
	if m.connected {
		status = m.theme.StatusOK.Render(m.health.Status)
		if m.stats.DeadLetter > 0 {
			status = m.theme.StatusWarn.Render(m.health.Status + " (dead letters)")
		}
	}

	uptime := time.Duration(m.health.UptimeSeconds) * time.Second
	return m.theme.Title.Render("eureka-ci watch") + " " +
		m.spinner.View() + " " +
		status +
		m.theme.Dim.Render(fmt.Sprintf("  uptime %s  checked %s",
			uptime, m.lastCheck.Format("15:04:05")))
}

func (m Model) renderStats() string {
	return m.theme.Border.Render(fmt.Sprintf(
		" queue: %s ready  %s in flight  %s dead ",
		m.theme.Highlight.Render(fmt.Sprintf("%d", m.stats.Ready)),
		m.theme.Highlight.Render(fmt.Sprintf("%d", m.stats.InFlight)),
		m.theme.StatusFailed.Render(fmt.Sprintf("%d", m.stats.DeadLetter)),
	))
}
