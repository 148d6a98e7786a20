package cli

import "github.com/charmbracelet/lipgloss"

type tuiTheme struct {
	canvas      lipgloss.Style
	panel       lipgloss.Style
	title       lipgloss.Style
	subtitle    lipgloss.Style
	text        lipgloss.Style
	muted       lipgloss.Style
	ok          lipgloss.Style
	warn        lipgloss.Style
	danger      lipgloss.Style
	info        lipgloss.Style
	highlight   lipgloss.Style
	help        lipgloss.Style
	railDone    lipgloss.Style
	railCurrent lipgloss.Style
	railFailed  lipgloss.Style
	railPending lipgloss.Style
}

func newTUITheme() tuiTheme {
	return tuiTheme{
		canvas: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D8DEE4")).
			Background(lipgloss.Color("#10141A")),
		panel: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#3A4450")).
			Padding(0, 1),
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A9D6FF")),
		subtitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#C4CCD8")),
		text: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D8DEE4")),
		muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#707E8C")),
		ok: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#66C584")),
		warn: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5B45E")),
		danger: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E26E78")),
		info: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6AB8FF")),
		highlight: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#10141A")).
			Background(lipgloss.Color("#6AB8FF")),
		help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8CA0B4")),
		railDone: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#66C584")),
		railCurrent: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#6AB8FF")),
		railFailed: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#E26E78")),
		railPending: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#707E8C")),
	}
}
