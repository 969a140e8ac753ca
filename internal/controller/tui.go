package controller

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	m "tessel.dev/pkg/tessel/internal/model"
)

const (
	defaultWidth    = 80
	finishedVisible = 12
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	grayStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// TUI implements UI using Bubble Tea for the live run view. Static displays are rendered
// as tables like the SimpleUI.
type TUI struct {
	*SimpleUI

	output io.Writer

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{
		SimpleUI: newSimpleUIWriter(output),
		output:   output,
	}
}

// Start launches the live view in run mode. Browse mode prints statically.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	config := newStartConfig(options)
	if config.mode != ModeRun {
		return nil
	}

	model := newRunModel(terminalWidth(t.output))
	program := tea.NewProgram(model, tea.WithOutput(t.output), tea.WithInput(nil), tea.WithContext(ctx))

	t.mu.Lock()
	t.program = program
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go func() {
		defer close(done)

		_, _ = program.Run()
	}()

	return nil
}

// Close stops the live view and waits for its final frame.
func (t *TUI) Close(_ context.Context) {
	t.mu.Lock()
	program, done := t.program, t.done
	t.program, t.done = nil, nil
	t.mu.Unlock()

	if program == nil {
		return
	}

	program.Send(runDoneMsg{})
	<-done
}

// Wait blocks until the live view has exited.
func (t *TUI) Wait(ctx context.Context) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (t *TUI) send(msg tea.Msg) bool {
	t.mu.Lock()
	program := t.program
	t.mu.Unlock()

	if program == nil {
		return false
	}

	program.Send(msg)

	return true
}

// DisplayError prints a styled failure notice.
func (t *TUI) DisplayError(_ context.Context, err error) {
	if err == nil {
		return
	}

	_, _ = fmt.Fprintln(t.output, errorStyle.Render(failedIcon+" "+err.Error()))
}

// DisplayRunStart resets the live view for a new run.
func (t *TUI) DisplayRunStart(ctx context.Context, runID string, targets int, parallel int) {
	if !t.send(runStartMsg{runID: runID, total: targets, parallel: parallel}) {
		t.SimpleUI.DisplayRunStart(ctx, runID, targets, parallel)
	}
}

// DisplayTargetStarted adds a spinner line for label.
func (t *TUI) DisplayTargetStarted(ctx context.Context, label string) {
	if !t.send(targetStartedMsg{label: label, at: time.Now()}) {
		t.SimpleUI.DisplayTargetStarted(ctx, label)
	}
}

// DisplayTargetFinished moves label to the finished list.
func (t *TUI) DisplayTargetFinished(ctx context.Context, outcome m.TargetOutcome) {
	if !t.send(targetFinishedMsg{outcome: outcome}) {
		t.SimpleUI.DisplayTargetFinished(ctx, outcome)
	}
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}

	return defaultWidth
}

type runStartMsg struct {
	runID    string
	total    int
	parallel int
}

type targetStartedMsg struct {
	label string
	at    time.Time
}

type targetFinishedMsg struct {
	outcome m.TargetOutcome
}

type runDoneMsg struct{}

// runModel is the Bubble Tea model of the live run view.
type runModel struct {
	spinner  spinner.Model
	width    int
	runID    string
	total    int
	parallel int
	running  map[string]time.Time
	finished []m.TargetOutcome
	passed   int
	failed   int
	done     bool
}

func newRunModel(width int) runModel {
	s := spinner.New()
	s.Spinner = spinner.Dot

	return runModel{
		spinner: s,
		width:   width,
		running: make(map[string]time.Time),
	}
}

func (rm runModel) Init() tea.Cmd {
	return rm.spinner.Tick
}

func (rm runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		rm.width = msg.Width
		return rm, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			rm.done = true
			return rm, tea.Quit
		}

		return rm, nil

	case runStartMsg:
		rm.runID = msg.runID
		rm.total = msg.total
		rm.parallel = msg.parallel

		return rm, nil

	case targetStartedMsg:
		rm.running[msg.label] = msg.at
		return rm, nil

	case targetFinishedMsg:
		delete(rm.running, msg.outcome.Label)

		rm.finished = append(rm.finished, msg.outcome)

		switch msg.outcome.Status {
		case m.StatusPassed:
			rm.passed++
		case m.StatusFailed:
			rm.failed++
		case m.StatusIdle, m.StatusRunning:
		}

		return rm, nil

	case runDoneMsg:
		rm.done = true
		return rm, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		rm.spinner, cmd = rm.spinner.Update(msg)

		return rm, cmd
	}

	return rm, nil
}

func (rm runModel) View() string {
	var b strings.Builder

	title := "tessel run"
	if rm.runID != "" {
		title += " " + shortID(rm.runID)
	}

	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	fmt.Fprintf(&b, "%d/%d done | %s | %s | %d worker(s)\n\n",
		len(rm.finished), rm.total,
		successStyle.Render(fmt.Sprintf("%d passed", rm.passed)),
		errorStyle.Render(fmt.Sprintf("%d failed", rm.failed)),
		rm.parallel)

	start := max(len(rm.finished)-finishedVisible, 0)
	if start > 0 {
		b.WriteString(grayStyle.Render(fmt.Sprintf("  ... %d earlier", start)))
		b.WriteString("\n")
	}

	for _, outcome := range rm.finished[start:] {
		line := rm.clip(formatOutcomeLine(outcome))

		if outcome.Status == m.StatusPassed {
			b.WriteString(successStyle.Render(line))
		} else {
			b.WriteString(errorStyle.Render(line))
		}

		b.WriteString("\n")
	}

	labels := make([]string, 0, len(rm.running))
	for label := range rm.running {
		labels = append(labels, label)
	}

	sort.Strings(labels)

	if !rm.done {
		for _, label := range labels {
			fmt.Fprintf(&b, "%s %s\n", rm.spinner.View(), rm.clip(label))
		}
	}

	return b.String()
}

func (rm runModel) clip(line string) string {
	width := rm.width
	if width <= 0 {
		width = defaultWidth
	}

	runes := []rune(line)
	if len(runes) <= width {
		return line
	}

	return string(runes[:width-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}
