// Package tui provides the interactive terminal UI for questline.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/questline/internal/models"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	itemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// refreshInterval keeps timer windows current on screen.
const refreshInterval = 5 * time.Second

// App is the main TUI application model.
type App struct {
	client       *Client
	cmdbar       *CmdBarModel
	viewport     viewport.Model
	now          func() time.Time
	typeIdx      int
	filterIdx    int
	quests       []models.Quest
	selectedIdx  int
	mode         string // "list", "detail"
	current      *models.Quest
	history      []models.Transition
	message      string
	loading      bool
	daemonOnline bool
	width        int
	height       int
}

// New creates a new TUI application.
func New(apiAddr string) *App {
	return &App{
		client:   NewClient(apiAddr),
		cmdbar:   NewCmdBarModel(),
		viewport: viewport.New(80, 20),
		now:      time.Now,
		mode:     "list",
		loading:  true,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (a *App) questType() models.QuestType {
	return models.QuestTypes[a.typeIdx]
}

func (a *App) selectedID() string {
	if a.mode == "detail" && a.current != nil {
		return a.current.ID
	}
	if a.selectedIdx < len(a.quests) {
		return a.quests[a.selectedIdx].ID
	}
	return ""
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.fetchQuests(),
		a.checkDaemon(),
		a.tickCmd(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.cmdbar.Focused() {
			return a, a.updateCmdBar(msg)
		}
		return a, a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.cmdbar.SetWidth(msg.Width - 6)
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-6, 5)

	case questsLoadedMsg:
		a.loading = false
		a.quests = msg.quests
		if a.selectedIdx >= len(a.quests) {
			a.selectedIdx = max(0, len(a.quests)-1)
		}

	case questDetailLoadedMsg:
		a.current = msg.quest
		a.history = msg.history
		a.viewport.SetContent(renderDetail(a.current, a.history, a.now()))

	case daemonStatusMsg:
		a.daemonOnline = msg.online

	case tickMsg:
		cmds := []tea.Cmd{a.tickCmd(), a.checkDaemon()}
		if a.mode == "detail" && a.current != nil {
			cmds = append(cmds, a.fetchDetail(a.current.ID))
		} else {
			cmds = append(cmds, a.fetchQuests())
		}
		return a, tea.Batch(cmds...)

	case commandResultMsg:
		a.message = msg.message
		if a.mode == "detail" && a.current != nil {
			return a, a.fetchDetail(a.current.ID)
		}
		return a, a.fetchQuests()

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()
	}

	return a, nil
}

func (a *App) updateCmdBar(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "enter" {
		input := strings.TrimSpace(a.cmdbar.Submit())
		return Execute(a.client, input, a.questType(), a.selectedID)
	}
	return a.cmdbar.Update(msg)
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		return tea.Quit

	case ":":
		a.message = ""
		return a.cmdbar.Focus()

	case "esc":
		if a.mode == "detail" {
			a.mode = "list"
			a.current = nil
			return a.fetchQuests()
		}

	case "up", "k":
		if a.mode == "detail" {
			a.viewport.LineUp(1)
		} else if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.mode == "detail" {
			a.viewport.LineDown(1)
		} else if a.selectedIdx < len(a.quests)-1 {
			a.selectedIdx++
		}

	case "tab":
		if a.mode == "list" {
			a.typeIdx = (a.typeIdx + 1) % len(models.QuestTypes)
			a.selectedIdx = 0
			a.loading = true
			return a.fetchQuests()
		}

	case "f":
		if a.mode == "list" {
			a.filterIdx = (a.filterIdx + 1) % len(stateFilters)
			a.selectedIdx = 0
			a.loading = true
			return a.fetchQuests()
		}

	case "enter":
		if a.mode == "list" && len(a.quests) > 0 {
			a.mode = "detail"
			a.viewport.GotoTop()
			return a.fetchDetail(a.quests[a.selectedIdx].ID)
		}

	case "s":
		return Execute(a.client, "start", a.questType(), a.selectedID)
	case "c":
		return Execute(a.client, "complete", a.questType(), a.selectedID)
	case "x":
		return Execute(a.client, "fail", a.questType(), a.selectedID)

	case "r":
		if a.mode == "detail" && a.current != nil {
			return a.fetchDetail(a.current.ID)
		}
		return a.fetchQuests()
	}
	return nil
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}
	header := titleStyle.Render("QUESTLINE")
	header += "  " + daemonStatus
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(fmt.Sprintf("[%s]", a.questType()))
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", a.width) + "\n")

	contentHeight := max(a.height-6, 5)

	switch a.mode {
	case "list":
		filterLabel := fmt.Sprintf(" Filter: [%s]", stateFilterNames[a.filterIdx])
		b.WriteString(lipgloss.NewStyle().Foreground(mutedColor).Render(filterLabel) + "\n")
		b.WriteString(a.renderList(contentHeight - 1))
	case "detail":
		b.WriteString(a.viewport.View())
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	}
	b.WriteString("\n" + a.cmdbar.View() + "\n")

	var status string
	switch a.mode {
	case "list":
		status = fmt.Sprintf(" Quests: %d | ↑↓:nav | Tab:type | f:filter | Enter:detail | s/c/x:start/complete/fail | q:quit", len(a.quests))
	default:
		status = " Esc:back | ↑↓:scroll | s/c/x:start/complete/fail | r:refresh"
	}
	b.WriteString(statusBarStyle.Width(a.width).Render(status))

	return b.String()
}

func (a *App) renderList(height int) string {
	if a.loading {
		return "\n  Loading quests...\n"
	}
	if len(a.quests) == 0 {
		return "\n  No quests found. Press : then add <name> to create one.\n"
	}

	now := a.now()
	var lines []string
	for i, q := range a.quests {
		line := fmt.Sprintf("%s  %s  %s", q.Number, formatState(q.State), q.Name)
		if r := remaining(q, now); r != "" {
			line += "  " + r
		}
		if i == a.selectedIdx {
			lines = append(lines, selectedStyle.Render("▶ "+line))
		} else {
			lines = append(lines, itemStyle.Render("  "+line))
		}
	}

	// Keep the selection visible
	if len(lines) > height && height > 0 {
		start := 0
		if a.selectedIdx >= height {
			start = a.selectedIdx - height + 1
		}
		lines = lines[start : start+height]
	}
	return strings.Join(lines, "\n") + "\n"
}

// --- Commands ---

func (a *App) fetchQuests() tea.Cmd {
	t, state := a.questType(), stateFilters[a.filterIdx]
	return func() tea.Msg {
		quests, err := a.client.ListQuests(t, state)
		if err != nil {
			return errMsg{err}
		}
		return questsLoadedMsg{quests}
	}
}

func (a *App) fetchDetail(id string) tea.Cmd {
	t := a.questType()
	return func() tea.Msg {
		q, err := a.client.GetQuest(t, id)
		if err != nil {
			return errMsg{err}
		}
		history, _ := a.client.History(t, id)
		return questDetailLoadedMsg{q, history}
	}
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		online, _ := a.client.CheckHealth()
		return daemonStatusMsg{online}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// --- Messages ---

type questsLoadedMsg struct {
	quests []models.Quest
}

type questDetailLoadedMsg struct {
	quest   *models.Quest
	history []models.Transition
}

type daemonStatusMsg struct {
	online bool
}

type tickMsg time.Time

type errMsg struct {
	err error
}

func (e errMsg) Error() string { return e.err.Error() }
