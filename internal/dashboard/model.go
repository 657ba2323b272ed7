package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
	}
}

// Messages

type tickMsg time.Time

type changedMsg struct{}

type loadedMsg struct {
	rows []Row
	err  error
	at   time.Time
}

// Model is the bubbletea model of the live dashboard.
type Model struct {
	source  Source
	refresh time.Duration
	changes <-chan struct{}
	keys    keyMap

	rows    []Row
	err     error
	updated time.Time
	width   int
	height  int
}

// NewModel creates a dashboard model. changes may be nil, in which case the
// table is only refreshed on ticks.
func NewModel(source Source, refresh time.Duration, changes <-chan struct{}) Model {
	if refresh <= 0 {
		refresh = 2 * time.Second
	}
	return Model{
		source:  source,
		refresh: refresh,
		changes: changes,
		keys:    defaultKeyMap(),
	}
}

// Init loads the first snapshot and starts the refresh triggers.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), tick(m.refresh), waitForChange(m.changes))
}

// Update handles input, refresh triggers and loaded snapshots.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.load()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.load(), tick(m.refresh))

	case changedMsg:
		return m, tea.Batch(m.load(), waitForChange(m.changes))

	case loadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.rows = msg.rows
			m.updated = msg.at
		}
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(Title.Render("livecap monitor"))
	subtitle := m.source.Dir
	if f := m.source.Filter.String(); f != "" {
		subtitle += "  filter: " + f
	}
	b.WriteString("  " + Subtitle.Render(subtitle))
	b.WriteString("\n\n")

	b.WriteString(RenderTable(m.rows, m.width))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(ErrorText.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}

	bar := Summarize(m.rows).String()
	if !m.updated.IsZero() {
		bar += "  updated " + m.updated.Format("15:04:05")
	}
	b.WriteString(StatusBar.Render(bar))
	b.WriteString("\n")

	b.WriteString(HelpBar.Render(fmt.Sprintf("%s %s  %s %s",
		HelpKey.Render(m.keys.Refresh.Help().Key), m.keys.Refresh.Help().Desc,
		HelpKey.Render(m.keys.Quit.Help().Key), m.keys.Quit.Help().Desc)))
	return b.String()
}

// Rows returns the rows currently displayed.
func (m Model) Rows() []Row {
	return m.rows
}

func (m Model) fileWidth() int {
	if m.width <= 0 {
		return DefaultFileWidth
	}
	// Leave room for the other columns.
	return max(12, m.width-72)
}

func (m Model) load() tea.Cmd {
	source := m.source
	width := m.fileWidth()
	return func() tea.Msg {
		entries, err := source.Load()
		if err != nil {
			return loadedMsg{err: err}
		}
		return loadedMsg{rows: BuildRows(entries, width), at: time.Now()}
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changedMsg{}
	}
}
