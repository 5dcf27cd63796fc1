package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"transmute/internal/jobs"
)

// progressView renders job events for one conversion. Terminals get a live
// bar; anything else gets one line per step so logs stay readable.
type progressView struct {
	mu       sync.Mutex
	out      io.Writer
	bar      *progressbar.ProgressBar
	lastStep string
	closed   bool
}

func newProgressView(out io.Writer, interactive bool) *progressView {
	view := &progressView{out: out}
	if interactive {
		view.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	return view
}

func (p *progressView) handle(ev jobs.Event) {
	if ev.Job == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	job := ev.Job

	if p.bar != nil {
		p.bar.Describe(fmt.Sprintf("%-14s", job.Step))
		_ = p.bar.Set(int(job.Progress))
		return
	}
	if job.Step != "" && job.Step != p.lastStep {
		p.lastStep = job.Step
		fmt.Fprintf(p.out, "[%3.0f%%] %s", job.Progress, job.Step)
		if job.Message != "" {
			fmt.Fprintf(p.out, ": %s", job.Message)
		}
		fmt.Fprintln(p.out)
	}
}

// finish stops rendering. Events that arrive afterwards are dropped.
func (p *progressView) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
