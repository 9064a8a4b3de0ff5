package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/questline/internal/models"
)

var (
	stateInit      = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	stateStarted   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	stateCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	stateFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginTop(1)
)

var stateFilters = []models.QuestState{
	"",
	models.QuestStateInitialization,
	models.QuestStateStarted,
	models.QuestStateCompleted,
	models.QuestStateFailed,
}

var stateFilterNames = []string{"ALL", "INIT", "STARTED", "DONE", "FAILED"}

func formatState(state models.QuestState) string {
	switch state {
	case models.QuestStateInitialization:
		return stateInit.Render("○ init")
	case models.QuestStateStarted:
		return stateStarted.Render("◐ started")
	case models.QuestStateCompleted:
		return stateCompleted.Render("● completed")
	case models.QuestStateFailed:
		return stateFailed.Render("✕ failed")
	default:
		return string(state)
	}
}

// remaining describes the time left in a started timer quest.
func remaining(q models.Quest, now time.Time) string {
	if q.Type != models.QuestTypeTimer || q.State != models.QuestStateStarted {
		return ""
	}
	left := time.Duration(q.Deadline()-models.Millis(now)) * time.Millisecond
	if left < 0 {
		return stateFailed.Render("overdue")
	}
	return left.Truncate(time.Second).String() + " left"
}

func renderField(label, value string) string {
	return fmt.Sprintf("%s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

func formatMillis(ms int64) string {
	if ms == models.Unset {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// renderDetail renders every field of a quest followed by its history.
func renderDetail(q *models.Quest, history []models.Transition, now time.Time) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(q.Name))
	b.WriteString("\n\n")

	b.WriteString(renderField("ID", q.ID))
	b.WriteString(renderField("Number", q.Number))
	b.WriteString(renderField("Type", q.Type.String()))
	b.WriteString(renderField("State", formatState(q.State)))
	if q.Description != "" {
		b.WriteString(renderField("Description", q.Description))
	}
	if len(q.Events) > 0 {
		b.WriteString(renderField("Events", strings.Join(q.Events, ", ")))
	}
	b.WriteString(renderField("Created", formatMillis(q.Creation)))

	switch q.Type {
	case models.QuestTypeTimer:
		b.WriteString(renderField("Duration", (time.Duration(q.Duration) * time.Millisecond).String()))
		b.WriteString(renderField("Started", formatMillis(q.Start)))
		if r := remaining(*q, now); r != "" {
			b.WriteString(renderField("Window", r))
		}
	case models.QuestTypeSideline:
		b.WriteString(renderField("Started", formatMillis(q.Start)))
		if q.IsAnchor() {
			b.WriteString(renderField("Chain", fmt.Sprintf("anchor, %d followers", len(q.Order))))
		} else {
			b.WriteString(renderField("Head", q.Head))
		}
		if len(q.Dep) > 0 {
			b.WriteString(renderField("Depends on", strings.Join(q.Dep, ", ")))
		}
	}
	b.WriteString(renderField("Finished", formatMillis(q.Finish)))

	if len(history) > 0 {
		b.WriteString(sectionStyle.Render("History"))
		b.WriteString("\n")
		for _, h := range history {
			outcome := stateCompleted.Render(h.Outcome)
			if h.Outcome != "success" {
				outcome = stateFailed.Render(h.Outcome)
			}
			line := fmt.Sprintf("  %s  %-15s %s", h.Timestamp.Local().Format("2006-01-02 15:04:05"), h.Action, outcome)
			if h.Details != "" {
				line += "  " + labelStyle.Render(h.Details)
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}
