package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/studymate/studymate/timer"
)

type phase int

const (
	phaseTimer phase = iota
	phaseNotes
	phaseTags
	phaseDone
)

// TimerModel renders a running study session and forwards keys to the controller.
type TimerModel struct {
	ctx  context.Context
	ctl  *timer.Controller
	user timer.User

	width  int
	height int

	phase  phase
	notes  textinput.Model
	tags   textinput.Model
	focus  int
	status string
	err    error

	abandoned bool
	result    *timer.CompleteResult
}

type tickMsg time.Time

type actionDoneMsg struct {
	action string
	err    error
	result *timer.CompleteResult
}

// NewTimerModel wraps a controller whose session has already been started.
func NewTimerModel(ctx context.Context, ctl *timer.Controller, user timer.User) TimerModel {
	notes := textinput.New()
	notes.Placeholder = "What did you cover?"
	notes.CharLimit = 500
	notes.Width = 48
	notes.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText))

	tags := textinput.New()
	tags.Placeholder = "comma,separated,tags"
	tags.CharLimit = 200
	tags.Width = 48
	tags.TextStyle = notes.TextStyle

	focus := 70
	ctl.SetFocusRating(focus)
	return TimerModel{ctx: ctx, ctl: ctl, user: user, notes: notes, tags: tags, focus: focus}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the once-per-second tick.
func (m TimerModel) Init() tea.Cmd {
	return tick()
}

func (m TimerModel) run(action string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn()}
	}
}

// Update handles messages.
func (m TimerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		if m.phase == phaseDone {
			return m, nil
		}
		return m, tea.Batch(tick(), m.run("tick", func() error { return m.ctl.Tick(m.ctx, m.user) }))

	case actionDoneMsg:
		m.err = msg.err
		switch {
		case msg.action == "complete" && msg.err == nil:
			m.result = msg.result
			m.phase = phaseDone
			return m, tea.Quit
		case msg.action == "complete":
			// let the user fix input or retry from the timer screen
			m.phase = phaseTimer
		case (msg.action == "tick" || msg.action == "resume") && msg.err == nil:
			if s := m.ctl.Snapshot(); s.Milestone != nil {
				m.status = s.Milestone.Message
			}
		}
		return m, nil

	case tea.KeyMsg:
		if m.phase == phaseNotes || m.phase == phaseTags {
			return m.updateForm(msg)
		}
		return m.updateTimer(msg)
	}
	return m, nil
}

func (m TimerModel) updateTimer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "p", " ":
		snap := m.ctl.Snapshot()
		if snap.State == timer.StateOngoing && !snap.PomodoroDue {
			return m, m.run("pause", func() error { return m.ctl.Pause(m.ctx, m.user) })
		}
		return m, m.run("resume", func() error { return m.ctl.Resume(m.ctx, m.user) })
	case "+", "=", "up":
		m.focus = min(m.focus+5, 100)
		m.ctl.SetFocusRating(m.focus)
	case "-", "down":
		m.focus = max(m.focus-5, 0)
		m.ctl.SetFocusRating(m.focus)
	case "s", "enter":
		m.phase = phaseNotes
		m.err = nil
		cmd := m.notes.Focus()
		return m, cmd
	case "q", "esc", "ctrl+c":
		m.ctl.Abandon()
		m.abandoned = true
		m.phase = phaseDone
		return m, tea.Quit
	}
	return m, nil
}

func (m TimerModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.notes.Blur()
		m.tags.Blur()
		m.phase = phaseTimer
		return m, nil
	case "ctrl+c":
		m.ctl.Abandon()
		m.abandoned = true
		m.phase = phaseDone
		return m, tea.Quit
	case "enter":
		if m.phase == phaseNotes {
			m.notes.Blur()
			m.phase = phaseTags
			cmd := m.tags.Focus()
			return m, cmd
		}
		m.tags.Blur()
		return m, m.complete()
	}

	var cmd tea.Cmd
	if m.phase == phaseNotes {
		m.notes, cmd = m.notes.Update(msg)
	} else {
		m.tags, cmd = m.tags.Update(msg)
	}
	return m, cmd
}

func (m TimerModel) complete() tea.Cmd {
	notes := m.notes.Value()
	tags := splitTags(m.tags.Value())
	focus := m.focus
	return func() tea.Msg {
		res, err := m.ctl.Complete(m.ctx, m.user, notes, tags, focus)
		return actionDoneMsg{action: "complete", err: err, result: res}
	}
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// View renders the timer screen.
func (m TimerModel) View() string {
	snap := m.ctl.Snapshot()

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s · %s", snap.SubjectID, snap.Topic)))
	b.WriteString("\n\n")

	clock := lipgloss.NewStyle().Bold(true).Foreground(stateColor(string(snap.State))).
		Render(formatClock(snap.Remaining))
	b.WriteString(clock + "  " + labelStyle.Render(strings.ToUpper(string(snap.State))))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf("elapsed %s   pomodoros %d   breaks %d   focus %d",
		formatClock(snap.Elapsed), snap.Pomodoros, snap.Breaks, m.focus)))
	if snap.InFlight {
		b.WriteString(labelStyle.Render("   syncing…"))
	}
	b.WriteString("\n")
	if snap.PomodoroDue && !snap.InFlight {
		b.WriteString("\n" + errorStyle.Render("pomodoro not saved, press p to retry") + "\n")
	}

	if m.status != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBreak)).Render(m.status) + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(m.err.Error()) + "\n")
	}

	switch m.phase {
	case phaseNotes:
		b.WriteString("\n" + labelStyle.Render("Notes") + "\n" + m.notes.View() + "\n")
	case phaseTags:
		b.WriteString("\n" + labelStyle.Render("Tags") + "\n" + m.tags.View() + "\n")
	}

	help := "p pause/resume · +/- focus · s finish · q abandon"
	if m.phase == phaseNotes || m.phase == phaseTags {
		help = "enter next · esc back"
	}
	b.WriteString("\n" + helpStyle.Render(help))

	return cardStyle.Render(b.String())
}

func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	h, mnt, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
	}
	return fmt.Sprintf("%02d:%02d", mnt, s)
}

// RunTimerTUI runs the timer until the session is completed or abandoned.
// It returns the completion result, or nil when the user walked away.
func RunTimerTUI(ctx context.Context, ctl *timer.Controller, user timer.User) (*timer.CompleteResult, error) {
	p := tea.NewProgram(NewTimerModel(ctx, ctl, user), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(TimerModel)
	if m.abandoned {
		return nil, nil
	}
	return m.result, nil
}
