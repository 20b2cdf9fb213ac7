// Package tui provides the interactive operation-plan review shown
// before a sync mutates remote state.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/specsync/specsync/internal/engine"
)

// ReviewResult holds the outcome of a plan review session
type ReviewResult struct {
	Approved bool
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(2).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginLeft(2)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("170")).
				Bold(true).
				PaddingLeft(2)

	itemStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	createStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	updateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	reuseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	detailKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true)

	detailValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	approveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	cancelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)
)

type reviewKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Detail  key.Binding
	Back    key.Binding
	Approve key.Binding
	Cancel  key.Binding
}

func (k reviewKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Detail, k.Approve, k.Cancel}
}

func (k reviewKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Detail, k.Back},
		{k.Approve, k.Cancel},
	}
}

var reviewKeys = reviewKeyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Detail:  key.NewBinding(key.WithKeys("enter", "l"), key.WithHelp("enter", "details")),
	Back:    key.NewBinding(key.WithKeys("esc", "h"), key.WithHelp("esc", "back")),
	Approve: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "apply plan")),
	Cancel:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "cancel")),
}

type reviewModel struct {
	plan     *engine.Plan
	cursor   int
	selected int
	viewMode string // "list" or "detail"
	help     help.Model
	result   *ReviewResult
	width    int
	height   int
}

func (m reviewModel) Init() tea.Cmd {
	return nil
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, reviewKeys.Cancel):
			if m.result == nil {
				m.result = &ReviewResult{Approved: false}
			}
			return m, tea.Quit

		case key.Matches(msg, reviewKeys.Approve):
			m.result = &ReviewResult{Approved: true}
			return m, tea.Quit

		case key.Matches(msg, reviewKeys.Up):
			if m.viewMode == "list" && m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case key.Matches(msg, reviewKeys.Down):
			if m.viewMode == "list" && m.cursor < len(m.plan.Entities)-1 {
				m.cursor++
			}
			return m, nil

		case key.Matches(msg, reviewKeys.Detail):
			if m.viewMode == "list" && len(m.plan.Entities) > 0 {
				m.selected = m.cursor
				m.viewMode = "detail"
			}
			return m, nil

		case key.Matches(msg, reviewKeys.Back):
			if m.viewMode == "detail" {
				m.viewMode = "list"
			}
			return m, nil
		}
	}

	return m, nil
}

func actionStyle(a engine.Action) lipgloss.Style {
	switch a {
	case engine.ActionCreate:
		return createStyle
	case engine.ActionUpdate:
		return updateStyle
	default:
		return reuseStyle
	}
}

func (m reviewModel) View() string {
	if m.result != nil {
		if m.result.Approved {
			return approveStyle.Render("\n✓ Plan approved, applying\n\n")
		}
		return cancelStyle.Render("\n✗ Sync cancelled, nothing was changed\n\n")
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Sync Plan Review"))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf(
		"%d entities, %d dependency links", len(m.plan.Entities), len(m.plan.Links))))
	b.WriteString("\n\n")

	if m.viewMode == "list" {
		for i, op := range m.plan.Entities {
			style := itemStyle
			cursor := "  "
			if i == m.cursor {
				style = selectedItemStyle
				cursor = "→ "
			}
			line := fmt.Sprintf("%s%-6s %-5s %s",
				cursor,
				actionStyle(op.Action).Render(string(op.Action)),
				op.Kind,
				op.Title,
			)
			b.WriteString(style.Render(line))
			b.WriteString("\n")
		}
	} else {
		op := m.plan.Entities[m.selected]
		b.WriteString(headerStyle.Render(fmt.Sprintf(
			"Entity %d of %d", m.selected+1, len(m.plan.Entities))))
		b.WriteString("\n\n")

		fieldNames := make([]string, len(op.Fields))
		for i, f := range op.Fields {
			fieldNames[i] = f.Field
		}

		details := []struct {
			key   string
			value string
		}{
			{"Kind", string(op.Kind)},
			{"Key", string(op.Key)},
			{"Action", string(op.Action)},
			{"Title", op.Title},
			{"Parent", string(op.ParentKey)},
			{"Fields", strings.Join(fieldNames, ", ")},
		}
		for _, d := range details {
			if d.value == "" {
				continue
			}
			b.WriteString("  ")
			b.WriteString(detailKeyStyle.Render(fmt.Sprintf("%-8s:", d.key)))
			b.WriteString(" ")
			b.WriteString(detailValueStyle.Render(d.value))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(reviewKeys))
	b.WriteString("\n")

	return b.String()
}

// RunPlanReview shows the operation plan and waits for the user to
// approve or cancel it
func RunPlanReview(plan *engine.Plan) (*ReviewResult, error) {
	model := reviewModel{
		plan:     plan,
		viewMode: "list",
		help:     help.New(),
	}

	program := tea.NewProgram(model)
	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("plan review failed: %w", err)
	}

	m, ok := final.(reviewModel)
	if !ok || m.result == nil {
		return &ReviewResult{Approved: false}, nil
	}
	return m.result, nil
}
