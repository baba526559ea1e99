package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/devpilot/internal/integration/output"
)

// Printer writes records as plain lines. Color is used only when the
// writer is a terminal that supports it.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	filter output.Filter
	stamp  lipgloss.Style
	system lipgloss.Style
	levels map[output.Level]lipgloss.Style
}

// NewPrinter creates a printer for w that prints records matching filter.
func NewPrinter(w io.Writer, filter output.Filter) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:      w,
		filter: filter,
		stamp:  r.NewStyle().Faint(true),
		system: r.NewStyle().Italic(true),
		levels: map[output.Level]lipgloss.Style{
			output.LevelError:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
			output.LevelWarning: r.NewStyle().Foreground(lipgloss.Color("11")),
			output.LevelInfo:    r.NewStyle().Foreground(lipgloss.Color("6")),
			output.LevelDebug:   r.NewStyle().Foreground(lipgloss.Color("8")),
		},
	}
}

// Print writes rec if it passes the filter.
func (p *Printer) Print(rec output.Record) error {
	if !p.filter.Match(rec) {
		return nil
	}
	tag := p.levels[rec.Level].Render(fmt.Sprintf("%-7s", rec.Level.String()))
	msg := rec.Message
	if rec.Source == output.SourceSystem {
		msg = p.system.Render(msg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "%s %s %s\n", p.stamp.Render(rec.Time.Format("15:04:05")), tag, msg)
	return err
}

// Follow prints every appended record from changes until the channel
// closes. Cleared notifications print a marker line.
func (p *Printer) Follow(changes <-chan output.Change) {
	for ch := range changes {
		switch ch.Kind {
		case output.ChangeAppended:
			_ = p.Print(ch.Record) // write errors on a closed stdout are not actionable
		case output.ChangeCleared:
			p.mu.Lock()
			fmt.Fprintln(p.w, p.system.Render("-- log cleared --"))
			p.mu.Unlock()
		}
	}
}
