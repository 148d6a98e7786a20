package cli

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ollaforge/forgecli/api"
	"github.com/ollaforge/forgecli/session"
)

const taskLabelWidth = 11

type taskBoardModel struct {
	overallBar progress.Model
	taskBar    progress.Model

	tasks   []api.TrainingTask
	overall session.Progress
	width   int
	theme   tuiTheme
}

func newTaskBoardModel(theme tuiTheme) taskBoardModel {
	return taskBoardModel{
		overallBar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithoutPercentage(),
		),
		taskBar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithoutPercentage(),
		),
		theme: theme,
	}
}

func (m taskBoardModel) Init() tea.Cmd {
	return nil
}

func (m taskBoardModel) Update(msg tea.Msg) (taskBoardModel, tea.Cmd) {
	// Bars are rendered statically from values via ViewAs.
	return m, nil
}

func (m *taskBoardModel) setSize(w int) {
	m.width = w
	// Label column, status column, padding.
	available := w - taskLabelWidth - 14
	if available < 10 {
		available = 10
	}
	m.overallBar.Width = available
	m.taskBar.Width = available
}

func (m *taskBoardModel) setTasks(tasks []api.TrainingTask) {
	m.tasks = tasks
}

func (m *taskBoardModel) setOverall(p session.Progress) {
	m.overall = p
}

func (m taskBoardModel) View() string {
	overallStatus := fmt.Sprintf("%3.0f%%", m.overall.Percent)
	if m.overall.TotalSteps > 0 {
		overallStatus = fmt.Sprintf("%d/%d", m.overall.CurrentStep, m.overall.TotalSteps)
	}

	lines := []string{lipgloss.JoinHorizontal(lipgloss.Center,
		m.theme.text.Width(taskLabelWidth).Render("Overall"),
		m.overallBar.ViewAs(m.overall.Percent/100),
		m.theme.muted.Render(" "+overallStatus),
	)}

	for _, task := range m.tasks {
		pct := float64(task.Progress) / 100
		var status string
		switch task.Status {
		case api.TaskCompleted:
			pct = 1
			status = m.theme.ok.Render(" done")
		case api.TaskInProgress:
			status = m.theme.info.Render(fmt.Sprintf(" %3d%%", task.Progress))
		case api.TaskFailed:
			status = m.theme.danger.Render(" failed")
		case api.TaskSkipped:
			pct = 0
			status = m.theme.muted.Render(" skipped")
		default:
			pct = 0
			status = m.theme.muted.Render(" -")
		}
		if task.ErrorCount > 0 && task.Status != api.TaskFailed {
			status += m.theme.warn.Render(fmt.Sprintf(" e=%d", task.ErrorCount))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Center,
			m.theme.text.Width(taskLabelWidth).Render(taskLabel(task.TaskID)),
			m.taskBar.ViewAs(pct),
			status,
		))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
