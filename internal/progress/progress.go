// Package progress renders a live progress line for sync runs:
// a spinner with entity counts on interactive terminals, plain
// line-per-step output in CI.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Indicator tracks and displays reconciliation progress
type Indicator struct {
	writer    io.Writer
	startTime time.Time

	mu       sync.Mutex
	total    int
	done     int
	label    string
	finished bool

	showSpinner bool
	spinnerIdx  int
	stopChan    chan struct{}
	stopOnce    sync.Once
	isCI        bool
}

// Config holds configuration for a progress indicator
type Config struct {
	Writer      io.Writer
	ShowSpinner bool
	// IsCI disables the live spinner line; auto-detected when false
	IsCI bool
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewIndicator creates a progress indicator
func NewIndicator(cfg Config) *Indicator {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if !cfg.IsCI {
		cfg.IsCI = os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
	}
	return &Indicator{
		writer:      cfg.Writer,
		startTime:   time.Now(),
		showSpinner: cfg.ShowSpinner && !cfg.IsCI,
		stopChan:    make(chan struct{}),
		isCI:        cfg.IsCI,
	}
}

// Start begins rendering. Total is the number of steps expected.
func (p *Indicator) Start(total int) {
	p.mu.Lock()
	p.total = total
	p.mu.Unlock()

	if p.showSpinner {
		go p.spin()
	}
}

// Step records one completed step and its label
func (p *Indicator) Step(label string) {
	p.mu.Lock()
	p.done++
	p.label = label
	done, total := p.done, p.total
	p.mu.Unlock()

	if p.isCI {
		fmt.Fprintf(p.writer, "[%d/%d] %s\n", done, total, label)
	}
}

// Stop halts rendering and clears the live line
func (p *Indicator) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.mu.Lock()
		p.finished = true
		p.mu.Unlock()
		if p.showSpinner {
			fmt.Fprintf(p.writer, "\r%s\r", spaces(80))
		}
	})
}

// Elapsed returns the time since the indicator was created
func (p *Indicator) Elapsed() time.Duration {
	return time.Since(p.startTime)
}

func (p *Indicator) spin() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.render()
		}
	}
}

func (p *Indicator) render() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}

	frame := spinnerFrames[p.spinnerIdx%len(spinnerFrames)]
	p.spinnerIdx++

	line := fmt.Sprintf("\r%s [%d/%d] %s", frame, p.done, p.total, p.label)
	if len(line) > 80 {
		line = line[:77] + "..."
	}
	fmt.Fprintf(p.writer, "%s%s", line, spaces(80-len(line)))
}

func spaces(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}
