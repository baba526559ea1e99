package console

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/dshills/devpilot/internal/integration/output"
	"github.com/dshills/devpilot/internal/integration/process"
)

// TUI is the interactive log console.
type TUI struct {
	screen  tcell.Screen
	model   Model
	actions Actions

	mu        sync.Mutex
	filter    output.Filter
	searching bool
	input     []rune
	scroll    int // lines scrolled up from the bottom
	status    Status
	message   string
	messageAt time.Time
	now       func() time.Time
}

// NewTUI creates a console drawing to screen. The screen is initialized by
// Run, not here.
func NewTUI(screen tcell.Screen, model Model, actions Actions) *TUI {
	return &TUI{
		screen:  screen,
		model:   model,
		actions: actions,
		filter:  output.AllRecords,
		now:     time.Now,
	}
}

// NewTerminalTUI creates a console on the controlling terminal.
func NewTerminalTUI(model Model, actions Actions) (*TUI, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return NewTUI(screen, model, actions), nil
}

// Run initializes the screen and processes input until ctx is done or the
// user quits. The screen is restored before Run returns.
func (t *TUI) Run(ctx context.Context) error {
	if err := t.screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer t.screen.Fini()
	t.screen.EnablePaste()

	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			ev := t.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}()

	t.Draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if t.handleEvent(ev) {
				return nil
			}
			t.Draw()
		}
	}
}

// Refresh schedules a redraw from any goroutine.
func (t *TUI) Refresh() {
	_ = t.screen.PostEvent(tcell.NewEventInterrupt(nil)) // best-effort; queue may be full
}

// SetStatus updates the status line and redraws.
func (t *TUI) SetStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
	t.Refresh()
}

// Filter returns the active filter.
func (t *TUI) Filter() output.Filter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter
}

func (t *TUI) flash(format string, args ...any) {
	t.message = fmt.Sprintf(format, args...)
	t.messageAt = t.now()
}

// handleEvent returns true when the session should end.
func (t *TUI) handleEvent(ev tcell.Event) bool {
	switch e := ev.(type) {
	case *tcell.EventKey:
		return t.HandleKey(e)
	case *tcell.EventResize:
		t.screen.Sync()
	}
	return false
}

// HandleKey applies one key press. It returns true on quit.
func (t *TUI) HandleKey(ev *tcell.EventKey) bool {
	t.mu.Lock()
	if t.searching {
		t.searchKey(ev)
		t.mu.Unlock()
		return false
	}

	if ev.Key() == tcell.KeyCtrlC {
		t.mu.Unlock()
		t.actions.Quit()
		return true
	}

	switch ev.Key() {
	case tcell.KeyUp:
		t.scroll++
	case tcell.KeyDown:
		t.scroll = max(0, t.scroll-1)
	case tcell.KeyPgUp:
		t.scroll += t.pageSize()
	case tcell.KeyPgDn:
		t.scroll = max(0, t.scroll-t.pageSize())
	case tcell.KeyHome:
		t.scroll = int(^uint(0) >> 1)
	case tcell.KeyEnd:
		t.scroll = 0
	case tcell.KeyEscape:
		t.filter = output.AllRecords
		t.scroll = 0
	}
	if ev.Key() != tcell.KeyRune {
		t.mu.Unlock()
		return false
	}

	r := ev.Rune()
	if lvl, ok := filterKeys[r]; ok {
		t.filter.Level = lvl
		t.scroll = 0
		t.mu.Unlock()
		return false
	}

	switch r {
	case '/':
		t.searching = true
		t.input = []rune(t.filter.Search)
		t.mu.Unlock()
		return false
	case 'q':
		t.mu.Unlock()
		t.actions.Quit()
		return true
	}
	t.mu.Unlock()

	// Actions run without the lock; they may call back into SetStatus.
	var msg string
	switch r {
	case 'r':
		msg = actionMessage("hot reload", t.actions.HotReload())
	case 'R':
		msg = actionMessage("hot restart", t.actions.HotRestart())
	case 'c':
		t.actions.Clear()
		msg = "log cleared"
	case 'e':
		path, err := t.actions.Export()
		if err != nil {
			msg = "export failed: " + err.Error()
		} else {
			msg = "exported to " + path
		}
	default:
		return false
	}

	t.mu.Lock()
	t.flash("%s", msg)
	t.mu.Unlock()
	return false
}

func actionMessage(name string, err error) string {
	if err != nil {
		return name + ": " + err.Error()
	}
	return name + " sent"
}

func (t *TUI) searchKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEnter:
		t.filter.Search = string(t.input)
		t.searching = false
		t.scroll = 0
	case tcell.KeyEscape:
		t.searching = false
		t.input = nil
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if n := len(t.input); n > 0 {
			t.input = t.input[:n-1]
		}
	case tcell.KeyCtrlU:
		t.input = t.input[:0]
	case tcell.KeyRune:
		t.input = append(t.input, ev.Rune())
	}
}

func (t *TUI) pageSize() int {
	_, h := t.screen.Size()
	return max(1, h-2)
}

// Draw renders the log and status line.
func (t *TUI) Draw() {
	t.mu.Lock()
	filter := t.filter
	status := t.status
	searching := t.searching
	input := string(t.input)
	message := t.message
	if message != "" && t.now().Sub(t.messageAt) > 5*time.Second {
		message = ""
		t.message = ""
	}
	t.mu.Unlock()

	records := t.model.FilteredEntries(filter)

	t.screen.Clear()
	w, h := t.screen.Size()
	if w <= 0 || h <= 0 {
		return
	}
	logRows := h - 1

	t.mu.Lock()
	maxScroll := max(0, len(records)-logRows)
	t.scroll = min(t.scroll, maxScroll)
	scroll := t.scroll
	t.mu.Unlock()

	end := len(records) - scroll
	start := max(0, end-logRows)
	for row, rec := range records[start:end] {
		t.drawRecord(row, w, rec)
	}

	var line string
	if searching {
		line = "/" + input
	} else {
		line = statusText(status, filter, t.model.ErrorCount(), t.model.WarningCount(), scroll, message)
	}
	drawString(t.screen, 0, h-1, w, padRight(line, w), statusStyle(status.State))
	if searching {
		t.screen.ShowCursor(runewidth.StringWidth(line), h-1)
	} else {
		t.screen.HideCursor()
	}
	t.screen.Show()
}

func (t *TUI) drawRecord(row, width int, rec output.Record) {
	stamp := rec.Time.Format("15:04:05")
	tag := fmt.Sprintf("%-7s", rec.Level.String())
	x := drawString(t.screen, 0, row, width, stamp+" ", tcell.StyleDefault.Dim(true))
	x += drawString(t.screen, x, row, width-x, tag+" ", levelStyle(rec.Level))
	msgStyle := tcell.StyleDefault
	if rec.Source == output.SourceSystem {
		msgStyle = msgStyle.Italic(true)
	}
	drawString(t.screen, x, row, width-x, rec.Message, msgStyle)
}

func statusText(s Status, f output.Filter, errs, warns, scroll int, message string) string {
	var b strings.Builder
	b.WriteString(" ")
	b.WriteString(strings.ToUpper(s.State.String()))
	if s.Profile != "" {
		b.WriteString(" ")
		b.WriteString(s.Profile)
	}
	if s.PID > 0 && s.State == process.StateRunning {
		fmt.Fprintf(&b, " pid %d", s.PID)
	}
	if s.State == process.StateFailed && s.Failure != nil {
		b.WriteString(": ")
		b.WriteString(s.Failure.String())
	}
	fmt.Fprintf(&b, " | E:%d W:%d", errs, warns)
	if !f.IsAll() {
		fmt.Fprintf(&b, " | filter %s", f.Level)
		if f.Search != "" {
			fmt.Fprintf(&b, " %q", f.Search)
		}
	}
	if scroll > 0 {
		fmt.Fprintf(&b, " | +%d", scroll)
	}
	b.WriteString(" | ")
	if message != "" {
		b.WriteString(message)
	} else {
		b.WriteString(Help)
	}
	return b.String()
}

// drawString writes s at (x, y), clipped to width cells, and returns the
// number of cells used.
func drawString(screen tcell.Screen, x, y, width int, s string, style tcell.Style) int {
	used := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if rw == 0 {
			rw = 1
			if r < ' ' {
				r = ' '
			}
		}
		if used+rw > width {
			break
		}
		screen.SetContent(x+used, y, r, nil, style)
		used += rw
	}
	return used
}

func padRight(s string, width int) string {
	if n := runewidth.StringWidth(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func levelStyle(l output.Level) tcell.Style {
	switch l {
	case output.LevelError:
		return tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	case output.LevelWarning:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow)
	case output.LevelDebug:
		return tcell.StyleDefault.Foreground(tcell.ColorGray)
	default:
		return tcell.StyleDefault.Foreground(tcell.ColorTeal)
	}
}

func statusStyle(s process.State) tcell.Style {
	base := tcell.StyleDefault.Bold(true)
	switch s {
	case process.StateRunning:
		return base.Background(tcell.ColorGreen).Foreground(tcell.ColorBlack)
	case process.StateStarting, process.StateStopping:
		return base.Background(tcell.ColorYellow).Foreground(tcell.ColorBlack)
	case process.StateFailed:
		return base.Background(tcell.ColorRed).Foreground(tcell.ColorWhite)
	default:
		return base.Background(tcell.ColorBlue).Foreground(tcell.ColorWhite)
	}
}
