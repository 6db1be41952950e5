package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	apperrors "updraft/internal/errors"
	"updraft/internal/update"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
)

// writeClipboard is a seam so tests never touch the system clipboard.
var writeClipboard = clipboard.WriteAll

const (
	defaultWidth   = 80
	maxNotesWidth  = 100
	maxNotesHeight = 14
)

// PerformFunc runs the confirmed update, reporting download progress.
type PerformFunc func(ctx context.Context, progress update.ProgressFunc) (*update.Handoff, error)

// Decision is how a prompt session ended.
type Decision int

const (
	DecisionDeclined Decision = iota
	DecisionLaunched
	DecisionFailed
)

func (d Decision) String() string {
	switch d {
	case DecisionLaunched:
		return "launched"
	case DecisionFailed:
		return "failed"
	default:
		return "declined"
	}
}

// PromptResult carries the outcome of a prompt session.
type PromptResult struct {
	Decision Decision
	Handoff  *update.Handoff
	Err      error
}

type promptPhase int

const (
	phaseAsking promptPhase = iota
	phaseRunning
	phaseDone
)

type progressMsg struct {
	written int64
	total   int64
}

type progressClosedMsg struct{}

type performDoneMsg struct {
	handoff *update.Handoff
	err     error
}

// PromptOption configures a PromptModel.
type PromptOption func(*PromptModel)

// WithChangelogStyle selects the glamour style used for release notes.
func WithChangelogStyle(style string) PromptOption {
	return func(m *PromptModel) {
		m.style = style
	}
}

// WithKeyMap overrides the default bindings.
func WithKeyMap(keys KeyMap) PromptOption {
	return func(m *PromptModel) {
		m.keys = keys
	}
}

// PromptModel asks whether to install an available update and, once
// confirmed, drives the download with a spinner and progress bar.
type PromptModel struct {
	ctx     context.Context
	cancel  context.CancelFunc
	info    update.UpdateInfo
	current string
	perform PerformFunc
	keys    KeyMap
	style   string

	spinner  spinner.Model
	progress progress.Model
	notes    viewport.Model
	hasNotes bool

	width   int
	phase   promptPhase
	written int64
	total   int64
	status  string
	result  PromptResult

	updates chan progressMsg
}

// NewPromptModel builds the prompt for info. current is the installed version.
func NewPromptModel(ctx context.Context, info update.UpdateInfo, current string, perform PerformFunc, opts ...PromptOption) *PromptModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = spinnerStyle

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	ctx, cancel := context.WithCancel(ctx)
	m := &PromptModel{
		ctx:      ctx,
		cancel:   cancel,
		info:     info,
		current:  current,
		perform:  perform,
		keys:     DefaultKeyMap(),
		style:    "auto",
		spinner:  s,
		progress: p,
		width:    defaultWidth,
		updates:  make(chan progressMsg, 16),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.layoutNotes(defaultWidth, 0)
	return m
}

// Result reports how the session ended. It is meaningful once the program
// has quit.
func (m *PromptModel) Result() PromptResult {
	return m.result
}

// layoutNotes renders the changelog into the viewport for the given
// terminal size. A zero height means unknown.
func (m *PromptModel) layoutNotes(width, height int) {
	m.width = width
	notesWidth := min(width-6, maxNotesWidth)
	if notesWidth < 20 {
		notesWidth = 20
	}
	rendered := RenderChangelog(m.info.Changelog, m.style, notesWidth)
	m.hasNotes = rendered != ""

	lines := strings.Count(rendered, "\n") + 1
	maxHeight := maxNotesHeight
	if height > 0 {
		maxHeight = max(3, min(maxNotesHeight, height-12))
	}
	m.notes = viewport.New(notesWidth, min(lines, maxHeight))
	m.notes.SetContent(rendered)
}

func (m *PromptModel) Init() tea.Cmd {
	return nil
}

func (m *PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layoutNotes(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case progressMsg:
		m.written = msg.written
		m.total = msg.total
		cmds := []tea.Cmd{m.waitForProgress()}
		if m.total > 0 {
			cmds = append(cmds, m.progress.SetPercent(float64(m.written)/float64(m.total)))
		}
		return m, tea.Batch(cmds...)

	case progressClosedMsg:
		return m, nil

	case performDoneMsg:
		m.phase = phaseDone
		m.cancel()
		if msg.err != nil {
			m.result = PromptResult{Decision: DecisionFailed, Err: msg.err}
		} else {
			m.result = PromptResult{Decision: DecisionLaunched, Handoff: msg.handoff}
		}
		return m, tea.Quit

	case spinner.TickMsg:
		if m.phase != phaseRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *PromptModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.phase == phaseRunning {
		if key.Matches(msg, m.keys.Quit) {
			m.status = "Cancelling…"
			m.cancel()
		}
		return m, nil
	}
	if m.phase == phaseDone {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.Cancel):
		m.phase = phaseDone
		m.cancel()
		m.result = PromptResult{Decision: DecisionDeclined}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Confirm):
		m.phase = phaseRunning
		m.status = ""
		return m, tea.Batch(m.spinner.Tick, m.run(), m.waitForProgress())

	case key.Matches(msg, m.keys.Copy):
		if err := writeClipboard(m.info.DownloadURL); err != nil {
			m.status = errorStyle.Render("Copy failed: " + err.Error())
		} else {
			m.status = "Copied download URL to clipboard."
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	return m, cmd
}

// run performs the update off the UI goroutine. Progress is forwarded
// without blocking the download.
func (m *PromptModel) run() tea.Cmd {
	ctx, perform, updates := m.ctx, m.perform, m.updates
	return func() tea.Msg {
		defer close(updates)
		h, err := perform(ctx, func(written, total int64) {
			select {
			case updates <- progressMsg{written: written, total: total}:
			default:
			}
		})
		return performDoneMsg{handoff: h, err: err}
	}
}

func (m *PromptModel) waitForProgress() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		p, ok := <-updates
		if !ok {
			return progressClosedMsg{}
		}
		return p
	}
}

func (m *PromptModel) View() string {
	var b strings.Builder

	switch m.phase {
	case phaseAsking:
		b.WriteString(titleStyle.Render("Update available"))
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "%s %s %s\n",
			textStyle.Render(DisplayVersion(m.current)),
			dimStyle.Render("→"),
			versionStyle.Render(DisplayVersion(m.info.Version)))
		b.WriteString(dimStyle.Render(ansi.Truncate(m.info.DownloadURL, max(m.width-4, 10), "…")))
		b.WriteString("\n")
		if m.hasNotes {
			b.WriteString("\n")
			b.WriteString(changelogStyle.Render(m.notes.View()))
			b.WriteString("\n")
		}
		if m.status != "" {
			b.WriteString("\n")
			b.WriteString(m.status)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(m.keys.helpLine()))

	case phaseRunning:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(),
			textStyle.Render("Installing "+DisplayVersion(m.info.Version)))
		if m.total > 0 {
			b.WriteString("\n")
			b.WriteString(m.progress.View())
			b.WriteString("\n")
			b.WriteString(dimStyle.Render(fmt.Sprintf("%s / %s", formatBytes(m.written), formatBytes(m.total))))
		} else if m.written > 0 {
			b.WriteString(dimStyle.Render(formatBytes(m.written) + " downloaded"))
		}
		if m.status != "" {
			b.WriteString("\n")
			b.WriteString(m.status)
		}

	case phaseDone:
		switch m.result.Decision {
		case DecisionLaunched:
			b.WriteString(versionStyle.Render("Update to " + DisplayVersion(m.info.Version) + " staged. Restarting…"))
		case DecisionFailed:
			b.WriteString(errorStyle.Render("Update failed: " + m.result.Err.Error()))
		default:
			b.WriteString(dimStyle.Render("Update skipped."))
		}
	}

	return containerStyle.Render(b.String()) + "\n"
}

// RunPrompt runs m as a full bubbletea program on the given streams and
// returns its result.
func RunPrompt(ctx context.Context, m *PromptModel, in io.Reader, out io.Writer) (PromptResult, error) {
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return PromptResult{Decision: DecisionDeclined}, ctx.Err()
		}
		return PromptResult{}, apperrors.New(apperrors.CodeUnknown, "update prompt failed", err)
	}
	return m.Result(), nil
}

// DisplayVersion renders v with a single leading "v", or "unknown" when empty.
func DisplayVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return "v" + strings.TrimPrefix(v, "v")
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
