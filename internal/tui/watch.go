// Package tui renders the live session watch view: a table of ledger
// sessions that refreshes on a timer and reloads immediately when the
// ledger file changes on disk.
package tui

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/lodestar-dev/lodestar/internal/session"
)

// defaultRefresh is the fallback poll interval when the file watcher
// cannot be established.
const defaultRefresh = 2 * time.Second

type tickMsg time.Time

type ledgerChangedMsg struct{}

type reloadedMsg struct {
	sessions []*session.Session
	err      error
}

// Model is the bubbletea model for the watch view
type Model struct {
	ledgerPath string
	refresh    time.Duration
	table      table.Model
	watcher    *fsnotify.Watcher

	sessions []*session.Session
	lastLoad time.Time
	loadErr  error
	width    int
	quitting bool
}

// NewModel builds a watch model reading the ledger at ledgerPath. refresh
// is the timer-based fallback interval; zero uses the default. The file
// watcher is best-effort: if it cannot be created the view still polls.
func NewModel(ledgerPath string, refresh time.Duration) *Model {
	if refresh <= 0 {
		refresh = defaultRefresh
	}

	columns := []table.Column{
		{Title: "ID", Width: 32},
		{Title: "Task", Width: 20},
		{Title: "Status", Width: 11},
		{Title: "Mode", Width: 8},
		{Title: "Idle", Width: 10},
		{Title: "Checkpoints", Width: 11},
	}
	tbl := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4"))
	tbl.SetStyles(styles)

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the directory: the atomic rename replaces the file inode,
		// so watching the path itself would go stale after one write.
		if werr := watcher.Add(filepath.Dir(ledgerPath)); werr != nil {
			watcher.Close()
			watcher = nil
		}
	} else {
		watcher = nil
	}

	return &Model{
		ledgerPath: ledgerPath,
		refresh:    refresh,
		table:      tbl,
		watcher:    watcher,
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.reload(), m.tick()}
	if m.watcher != nil {
		cmds = append(cmds, m.awaitChange())
	}
	return tea.Batch(cmds...)
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// awaitChange blocks on the next filesystem event touching the ledger
func (m *Model) awaitChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(ev.Name) == filepath.Clean(m.ledgerPath) {
					return ledgerChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
				// Watcher hiccups fall back to the poll timer.
			}
		}
	}
}

// reload reads the ledger off the UI loop
func (m *Model) reload() tea.Cmd {
	path := m.ledgerPath
	return func() tea.Msg {
		ledger, err := session.ReadLedger(path)
		if err != nil {
			return reloadedMsg{err: err}
		}
		sessions := ledger.Sessions
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].LastActiveAt.After(sessions[j].LastActiveAt)
		})
		return reloadedMsg{sessions: sessions}
	}
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if m.watcher != nil {
				m.watcher.Close()
			}
			return m, tea.Quit
		case "r":
			return m, m.reload()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetHeight(max(4, msg.Height-6))

	case tickMsg:
		return m, tea.Batch(m.reload(), m.tick())

	case ledgerChangedMsg:
		return m, tea.Batch(m.reload(), m.awaitChange())

	case reloadedMsg:
		m.lastLoad = time.Now()
		m.loadErr = msg.err
		if msg.err == nil {
			m.sessions = msg.sessions
			m.table.SetRows(m.rows())
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) rows() []table.Row {
	now := time.Now()
	rows := make([]table.Row, 0, len(m.sessions))
	for _, sess := range m.sessions {
		modeName := ""
		if sess.Context != nil {
			modeName = sess.Context.Mode
		}
		rows = append(rows, table.Row{
			sess.ID,
			sess.Task.ID,
			string(sess.Status),
			modeName,
			now.Sub(sess.LastActiveAt).Round(time.Second).String(),
			fmt.Sprintf("%d", len(sess.Checkpoints)),
		})
	}
	return rows
}

// View implements tea.Model
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var active int
	for _, sess := range m.sessions {
		if sess.Status == session.StatusActive {
			active++
		}
	}

	header := titleStyle.Render("lodestar sessions") + " " +
		statusBarStyle.Render(fmt.Sprintf("%d total, %s", len(m.sessions),
			renderStatus(session.StatusActive)+fmt.Sprintf(" %d", active)))

	status := fmt.Sprintf("ledger: %s", m.ledgerPath)
	if m.loadErr != nil {
		status = fmt.Sprintf("reload failed: %v", m.loadErr)
	} else if !m.lastLoad.IsZero() {
		status += fmt.Sprintf("  refreshed %s", m.lastLoad.Format("15:04:05"))
	}

	return header + "\n" +
		tableBorderStyle.Render(m.table.View()) + "\n" +
		statusBarStyle.Render(status) + "\n" +
		statusBarStyle.Render("q quit  r refresh  ↑/↓ navigate")
}

// Run starts the watch view in the alternate screen
func Run(ledgerPath string, refresh time.Duration) error {
	p := tea.NewProgram(NewModel(ledgerPath, refresh), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
