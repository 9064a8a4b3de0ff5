package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/questline/internal/models"
)

var (
	cmdBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

const cmdBarHint = "Press : to enter command (add, timer, follow, start, complete, fail)"

// CmdBarModel manages the command input bar
type CmdBarModel struct {
	input   textinput.Model
	focused bool
}

// NewCmdBarModel creates a new command bar
func NewCmdBarModel() *CmdBarModel {
	ti := textinput.New()
	ti.Placeholder = "add <name> | timer <duration> <name> | follow <head> <name>"
	ti.CharLimit = 256
	return &CmdBarModel{
		input: ti,
	}
}

// Focused reports whether the bar takes key input
func (m *CmdBarModel) Focused() bool {
	return m.focused
}

// Focus focuses the command bar
func (m *CmdBarModel) Focus() tea.Cmd {
	m.focused = true
	return m.input.Focus()
}

// Blur unfocuses the command bar
func (m *CmdBarModel) Blur() {
	m.focused = false
	m.input.Blur()
	m.input.SetValue("")
}

// Submit returns the current input and blurs
func (m *CmdBarModel) Submit() string {
	val := m.input.Value()
	m.Blur()
	return val
}

// SetWidth sets the input width
func (m *CmdBarModel) SetWidth(w int) {
	m.input.Width = w
}

// Update handles messages
func (m *CmdBarModel) Update(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.Blur()
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// View renders the command bar
func (m *CmdBarModel) View() string {
	if m.focused {
		prompt := promptStyle.Render(": ")
		return cmdBarStyle.Render(prompt + m.input.View())
	}
	return cmdBarStyle.Render(cmdBarHint)
}

// Execute processes a command against the current quest type. selected
// returns the id of the highlighted quest, or "".
func Execute(client *Client, input string, current models.QuestType, selected func() string) tea.Cmd {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd := parts[0]
	args := parts[1:]

	return func() tea.Msg {
		switch cmd {
		case "add":
			if len(args) < 1 {
				return commandResultMsg{"Usage: add <name>"}
			}
			q, err := client.CreateQuest(current, strings.Join(args, " "), nil)
			if err != nil {
				return commandResultMsg{fmt.Sprintf("Error: %v", err)}
			}
			return commandResultMsg{fmt.Sprintf("Created %s quest %s", q.Type, q.Number)}

		case "timer":
			if len(args) < 2 {
				return commandResultMsg{"Usage: timer <duration> <name>"}
			}
			d, err := time.ParseDuration(args[0])
			if err != nil || d <= 0 {
				return commandResultMsg{fmt.Sprintf("Error: invalid duration %q", args[0])}
			}
			q, err := client.CreateQuest(models.QuestTypeTimer, strings.Join(args[1:], " "),
				map[string]any{"duration_ms": d.Milliseconds()})
			if err != nil {
				return commandResultMsg{fmt.Sprintf("Error: %v", err)}
			}
			return commandResultMsg{fmt.Sprintf("Created timer quest %s (%s)", q.Number, d)}

		case "follow":
			if len(args) < 2 {
				return commandResultMsg{"Usage: follow <head-id> <name>"}
			}
			q, err := client.CreateQuest(models.QuestTypeSideline, strings.Join(args[1:], " "),
				map[string]any{"head": args[0]})
			if err != nil {
				return commandResultMsg{fmt.Sprintf("Error: %v", err)}
			}
			return commandResultMsg{fmt.Sprintf("Sideline quest %s joined chain %s", q.Number, shortID(q.Head))}

		case "start", "complete", "fail":
			id := selected()
			if len(args) > 0 {
				id = args[0]
			}
			if id == "" {
				return commandResultMsg{"No quest selected"}
			}
			q, err := client.Advance(current, id, cmd)
			if err != nil {
				return commandResultMsg{fmt.Sprintf("Error: %v", err)}
			}
			return commandResultMsg{fmt.Sprintf("Quest %s is %s", q.Number, q.State)}
		}

		return commandResultMsg{fmt.Sprintf("Unknown command: %s", cmd)}
	}
}

type commandResultMsg struct {
	message string
}
