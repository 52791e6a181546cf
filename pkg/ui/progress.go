package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/muesli/termenv"
)

const barWidth = 30

// Progress counts processed items and renders them as a single
// carriage-return line with a progress bar. When the output is not a
// terminal only the final line is written.
type Progress struct {
	mu          sync.Mutex
	out         io.Writer
	bar         progress.Model
	interactive bool

	label   string
	total   int
	done    int
	started time.Time
	width   int
	active  bool
}

// NewProgress creates a Progress writing to out
func NewProgress(out io.Writer, noColor bool) *Progress {
	opts := []progress.Option{
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	}
	if noColor || !IsTerminal(out) {
		opts = append(opts, progress.WithColorProfile(termenv.Ascii))
	} else {
		opts = append(opts, progress.WithDefaultGradient())
	}

	return &Progress{
		out:         out,
		bar:         progress.New(opts...),
		interactive: IsTerminal(out),
	}
}

// Start begins a new line. A total of 0 means the size is unknown.
func (p *Progress) Start(label string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		p.finishLocked()
	}
	p.label = label
	p.total = total
	p.done = 0
	p.width = 0
	p.started = time.Now()
	p.active = true
	p.draw()
}

// Increment records one processed item
func (p *Progress) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		return
	}
	p.done++
	p.draw()
}

// Finish writes the final state and ends the line
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		p.finishLocked()
	}
}

func (p *Progress) finishLocked() {
	if p.interactive {
		p.draw()
	} else {
		fmt.Fprint(p.out, p.line())
	}
	fmt.Fprintln(p.out)
	p.active = false
}

func (p *Progress) draw() {
	if !p.interactive {
		return
	}
	line := p.line()
	// pad over whatever the previous, possibly longer, line left behind
	pad := p.width - len(line)
	if pad < 0 {
		pad = 0
	}
	p.width = len(line)
	fmt.Fprint(p.out, "\r"+line+strings.Repeat(" ", pad))
}

// line renders the current state without a trailing newline
func (p *Progress) line() string {
	var b strings.Builder
	b.WriteString(p.label)
	b.WriteByte(' ')

	if p.total > 0 {
		b.WriteString(p.bar.ViewAs(p.percent()))
		fmt.Fprintf(&b, " %d/%d", p.done, p.total)
	} else {
		fmt.Fprintf(&b, "%d", p.done)
	}

	if elapsed := time.Since(p.started); elapsed >= time.Second {
		fmt.Fprintf(&b, " • %s", elapsed.Round(time.Second))
	}
	return b.String()
}

// percent is done/total clamped to [0, 1]
func (p *Progress) percent() float64 {
	if p.total <= 0 {
		return 0
	}
	pct := float64(p.done) / float64(p.total)
	if pct > 1 {
		return 1
	}
	return pct
}

// Done returns the number of items counted since Start
func (p *Progress) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}
