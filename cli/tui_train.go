package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ollaforge/forgecli/api"
	"github.com/ollaforge/forgecli/session"
)

// Messages
type trainUIStateMsg struct {
	state session.State
}

type trainUILogMsg struct {
	level string
	text  string
}

type trainUIErrorMsg struct {
	err error
}

type trainUIDoneMsg struct{}

type trainUIModel struct {
	theme tuiTheme

	width  int
	height int

	cancel context.CancelFunc
	sess   *session.Session

	slug      string
	serverURL string

	state session.State

	// Components
	ledger    ledgerModel
	taskBoard taskBoardModel

	showHelp   bool
	cancelSent bool
	stopping   bool
	err        error
	started    time.Time
}

func newTrainUIModel(cancel context.CancelFunc, sess *session.Session, slug, serverURL string) trainUIModel {
	theme := newTUITheme()
	return trainUIModel{
		theme:     theme,
		cancel:    cancel,
		sess:      sess,
		slug:      slug,
		serverURL: serverURL,
		state:     session.State{Status: api.StatusIdle, CanStart: true},
		started:   time.Now(),
		ledger:    newLedgerModel(theme),
		taskBoard: newTaskBoardModel(theme),
	}
}

func (m trainUIModel) Init() tea.Cmd {
	return nil
}

func (m trainUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalculateLayout()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil && !m.stopping {
				m.stopping = true
				m.cancel()
				m.ledger.addEntry(ledgerEntry{
					at:    time.Now(),
					level: "warn",
					text:  "Detaching from training session...",
				})
			}
		case "c":
			if isActiveStatus(m.state.Status) && !m.cancelSent {
				m.cancelSent = true
				m.ledger.addEntry(ledgerEntry{
					at:    time.Now(),
					level: "warn",
					text:  "Requesting cancellation...",
				})
				cmds = append(cmds, trainUICancelCmd(m.sess))
			}
		case "x":
			if m.state.LastError != "" {
				m.sess.ClearError()
			}
		case "p":
			m.ledger.togglePause()
		case "?":
			m.showHelp = !m.showHelp
		}

	case trainUIStateMsg:
		if !isActiveStatus(msg.state.Status) {
			m.cancelSent = false
		}
		m.noteTransition(m.state, msg.state)
		m.state = msg.state
		m.taskBoard.setTasks(msg.state.Tasks)
		m.taskBoard.setOverall(msg.state.Progress)

	case trainUILogMsg:
		m.ledger.addEntry(ledgerEntry{
			at:    time.Now(),
			level: msg.level,
			text:  msg.text,
		})

	case trainUIErrorMsg:
		m.err = msg.err
		m.ledger.addEntry(ledgerEntry{
			at:    time.Now(),
			level: "error",
			text:  msg.err.Error(),
		})

	case trainUIDoneMsg:
		return m, tea.Quit
	}

	// Update components
	m.ledger, cmd = m.ledger.Update(msg)
	cmds = append(cmds, cmd)

	m.taskBoard, cmd = m.taskBoard.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// noteTransition turns state changes into ledger entries so the history of
// a run stays visible after the panels move on.
func (m *trainUIModel) noteTransition(old, next session.State) {
	if old.Connected != next.Connected {
		if next.Connected {
			m.ledger.addEntry(ledgerEntry{at: time.Now(), level: "ok", text: "Live channel connected"})
		} else {
			m.ledger.addEntry(ledgerEntry{at: time.Now(), level: "warn", text: "Live channel lost, reconnecting..."})
		}
	}
	if old.Status == next.Status {
		return
	}
	switch next.Status {
	case api.StatusCompleted:
		m.ledger.addEntry(ledgerEntry{at: time.Now(), level: "ok", text: "Training completed"})
	case api.StatusFailed:
		text := "Training failed"
		if next.LastError != "" {
			text += ": " + next.LastError
		}
		m.ledger.addEntry(ledgerEntry{at: time.Now(), level: "error", text: text})
	case api.StatusCancelled:
		m.ledger.addEntry(ledgerEntry{at: time.Now(), level: "warn", text: "Training cancelled"})
	default:
		if !isActiveStatus(old.Status) && isActiveStatus(next.Status) {
			m.ledger.addEntry(ledgerEntry{at: time.Now(), level: "info", text: "Training started (job " + orDash(next.JobID) + ")"})
		}
	}
}

func isActiveStatus(s api.TrainingStatus) bool {
	return s != api.StatusIdle && !s.IsTerminal()
}

func (m *trainUIModel) recalculateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}

	leftW := int(float64(m.width-2) * 0.68)
	if leftW < 40 {
		leftW = m.width - 2
	}

	// Header ~4 lines, rail ~3, footer ~3.
	availableHeight := m.height - 11

	_, bottomHeight := panelHeights(availableHeight)

	m.ledger.setSize(leftW-2, bottomHeight-2)
	m.taskBoard.setSize(leftW - 2)
}

func (m trainUIModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading training monitor..."
	}

	top := m.renderHeader()
	rail := m.theme.panel.Width(m.width - 2).Render(renderLifecycleRail(m.theme, m.state.Tasks))
	content := m.renderMainPanels()
	help := m.renderFooter()

	sections := []string{top, rail, content}
	if m.state.LastError != "" {
		hint := "Press x to dismiss"
		sections = append(sections, renderErrorCard(m.theme, m.state.LastError, "", hint, m.width-2))
	}
	if m.showHelp {
		controls := "q: detach | c: cancel training | x: dismiss error | p: pause ledger | ?: toggle help"
		sections = append(sections, m.theme.panel.Width(m.width-2).Render(m.theme.help.Render(controls)))
	}
	sections = append(sections, help)

	return m.theme.canvas.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m trainUIModel) renderHeader() string {
	uptime := time.Since(m.started).Round(time.Second)
	title := m.theme.title.Render("forgecli train watch")
	meta := m.theme.muted.Render(fmt.Sprintf("project=%s  server=%s", m.slug, m.serverURL))

	conn := m.theme.danger.Render("offline")
	if m.state.Connected {
		conn = m.theme.ok.Render("live")
	}
	info := m.theme.text.Render(fmt.Sprintf("status=%s  job=%s  channel=%s  uptime=%s",
		m.state.Status, orDash(m.state.JobID), conn, uptime))
	if m.stopping {
		info = m.theme.warn.Render(info)
	}
	return m.theme.panel.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, title, meta, info))
}

func (m trainUIModel) renderMainPanels() string {
	leftW := int(float64(m.width-2) * 0.68)
	if leftW < 40 {
		leftW = m.width - 2
	}
	rightW := (m.width - 2) - leftW
	if rightW < 24 {
		rightW = 24
		if leftW+rightW > m.width-2 {
			leftW = (m.width - 2) - rightW
		}
	}

	topHeight, bottomHeight := panelHeights(m.height - 11)

	leftTop := m.renderProgressPanel(leftW, topHeight)
	leftBottom := m.renderLedgerPanel(leftW, bottomHeight)
	leftCol := lipgloss.JoinVertical(lipgloss.Left, leftTop, leftBottom)

	rightCol := m.renderFilesPanel(rightW, topHeight+bottomHeight)

	if leftW <= 0 {
		return rightCol
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, leftCol, rightCol)
}

func (m trainUIModel) renderProgressPanel(width, height int) string {
	lines := []string{
		m.theme.subtitle.Render("Pipeline"),
	}

	lines = append(lines, m.taskBoard.View())

	detail := fmt.Sprintf("Step %d/%d", m.state.Progress.CurrentStep, m.state.Progress.TotalSteps)
	if m.state.Progress.Device != "" {
		detail += "  device=" + string(m.state.Progress.Device)
	}
	lines = append(lines, m.theme.muted.Render(detail))

	if m.state.IsStarting {
		lines = append(lines, m.theme.info.Render("Start requested, waiting for backend..."))
	}
	if m.cancelSent {
		lines = append(lines, m.theme.warn.Render("Cancellation requested..."))
	}
	return m.theme.panel.Width(width).Height(height).Render(strings.Join(lines, "\n"))
}

func (m trainUIModel) renderLedgerPanel(width, height int) string {
	label := m.theme.subtitle.Render("Event Ledger")
	if m.ledger.paused {
		label += m.theme.warn.Render(" [paused]")
	}

	content := m.ledger.View()
	return m.theme.panel.Width(width).Height(height).Render(lipgloss.JoinVertical(lipgloss.Left, label, content))
}

func (m trainUIModel) renderFilesPanel(width, height int) string {
	lines := []string{m.theme.subtitle.Render("Data Files")}

	if len(m.state.FileStatuses) == 0 {
		lines = append(lines, m.theme.muted.Render("No ingest activity yet"))
	}

	for _, fs := range m.state.FileStatuses {
		stateStyle := m.theme.info
		switch fs.Status {
		case "completed":
			stateStyle = m.theme.ok
		case "failed":
			stateStyle = m.theme.danger
		}
		lines = append(lines, fmt.Sprintf("%s %s",
			stateStyle.Render(strings.ToUpper(string(fs.Status))),
			truncateRunes(fs.Filename, width-14)))
		if fs.RowsLoaded > 0 || fs.RowsSkipped > 0 {
			lines = append(lines, m.theme.muted.Render(fmt.Sprintf("  rows=%d skipped=%d", fs.RowsLoaded, fs.RowsSkipped)))
		}
	}

	lines = append(lines, "")
	canStart := m.theme.danger.Render("no")
	if m.state.CanStart {
		canStart = m.theme.ok.Render("yes")
	}
	lines = append(lines, m.theme.text.Render("Can start: ")+canStart)

	return m.theme.panel.Width(width).Height(height).Render(strings.Join(lines, "\n"))
}

func (m trainUIModel) renderFooter() string {
	parts := []string{
		m.theme.help.Render("q detach"),
		m.theme.help.Render("c cancel"),
		m.theme.help.Render("p pause ledger"),
		m.theme.help.Render("? help"),
	}
	if !m.state.Connected {
		parts = append(parts, m.theme.warn.Render("reconnecting"))
	}
	if m.ledger.paused {
		parts = append(parts, m.theme.warn.Render("ledger paused"))
	}
	return m.theme.panel.Width(m.width - 2).Render(strings.Join(parts, "  |  "))
}

func trainUICancelCmd(sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sess.Cancel(ctx); err != nil {
			return trainUIErrorMsg{err: err}
		}
		return nil
	}
}

// runTrainWatchUI attaches the full-screen monitor to a project's training
// session and blocks until the user detaches.
func runTrainWatchUI(client *api.Client, slug string) error {
	return runTrainWatchUIWithStart(client, slug, nil)
}

// runTrainWatchUIWithStart does the same but issues a start request through
// the session right after opening, so `train start --watch` shows the
// optimistic starting state.
func runTrainWatchUIWithStart(client *api.Client, slug string, startReq *api.StartTrainingRequest) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	// The session fires no callbacks until Open, so p is always set by the
	// time these closures run.
	var p *tea.Program

	sess := session.New(client, slug, nil,
		session.WithOnChange(func(st session.State) {
			p.Send(trainUIStateMsg{state: st})
		}),
		session.WithOnLog(func(entry session.LogEntry) {
			p.Send(trainUILogMsg{level: trainUILogLevel(entry.Message), text: entry.Message})
		}),
	)

	model := newTrainUIModel(cancel, sess, slug, client.BaseURL())
	p = tea.NewProgram(model, tea.WithAltScreen())

	restoreLogs := captureTrainUILogs(p)
	defer restoreLogs()

	go func() {
		sess.Open(ctx)
		p.Send(trainUIStateMsg{state: sess.State()})
		if startReq != nil {
			if err := sess.Start(ctx, *startReq); err != nil {
				p.Send(trainUIErrorMsg{err: err})
			}
		}
		<-ctx.Done()
		sess.Close()
		p.Send(trainUIDoneMsg{})
	}()

	_, runErr := p.Run()
	cancel()
	return runErr
}

func trainUILogLevel(line string) string {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
		return "error"
	}
	if strings.Contains(lower, "warn") {
		return "warn"
	}
	return "info"
}

type trainUILogForwarder struct {
	p       *tea.Program
	mu      sync.Mutex
	pending string
}

func (w *trainUILogForwarder) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending += string(p)
	for {
		newline := strings.IndexByte(w.pending, '\n')
		if newline < 0 {
			break
		}
		line := strings.TrimSpace(w.pending[:newline])
		w.pending = w.pending[newline+1:]
		w.emitLine(line)
	}
	return len(p), nil
}

func (w *trainUILogForwarder) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	line := strings.TrimSpace(w.pending)
	w.pending = ""
	w.emitLine(line)
}

func (w *trainUILogForwarder) emitLine(line string) {
	if line == "" {
		return
	}
	w.p.Send(trainUILogMsg{level: trainUILogLevel(line), text: line})
}

// captureTrainUILogs redirects the standard logger into the ledger so
// channel diagnostics do not corrupt the alt screen.
func captureTrainUILogs(p *tea.Program) func() {
	oldWriter := log.Writer()
	oldFlags := log.Flags()
	oldPrefix := log.Prefix()

	forwarder := &trainUILogForwarder{p: p}
	log.SetFlags(0)
	log.SetPrefix("")
	log.SetOutput(forwarder)

	return func() {
		forwarder.flush()
		log.SetOutput(oldWriter)
		log.SetFlags(oldFlags)
		log.SetPrefix(oldPrefix)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
