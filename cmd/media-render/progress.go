package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"media-render/internal/pipeline"
)

// redrawInterval throttles the progress line.
const redrawInterval = 200 * time.Millisecond

// progress draws a single updating status line on a terminal. It stays
// silent when the output is not a terminal.
type progress struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	last    time.Time
	drawn   bool
	now     func() time.Time
}

func newProgress(w io.Writer, enabled bool) *progress {
	return &progress{w: w, enabled: enabled, now: time.Now}
}

// Update is the pipeline progress callback.
func (p *progress) Update(pr pipeline.Progress) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	final := pr.Total > 0 && pr.Frame >= pr.Total
	if p.drawn && !final && now.Sub(p.last) < redrawInterval {
		return
	}
	p.last = now
	p.drawn = true
	fmt.Fprintf(p.w, "\r\033[K%s", formatProgress(pr))
}

// Done ends the progress line.
func (p *progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}

func formatProgress(pr pipeline.Progress) string {
	if pr.Total <= 0 {
		return fmt.Sprintf("frame %d  t=%.2fs", pr.Frame, pr.PTS.Float64())
	}
	pct := float64(pr.Frame) * 100 / float64(pr.Total)
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("frame %d/%d  %5.1f%%  t=%.2fs", pr.Frame, pr.Total, pct, pr.PTS.Float64())
}
