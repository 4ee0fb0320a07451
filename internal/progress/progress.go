// Package progress renders audit progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/panbanda/auger/pkg/analyzer"
)

// Bar wraps a progress bar fed by analyzer trackers.
type Bar struct {
	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	w     io.Writer
	label string
}

// Option configures a Bar.
type Option func(*Bar)

// WithWriter sends output to w instead of stderr.
func WithWriter(w io.Writer) Option {
	return func(b *Bar) {
		b.w = w
	}
}

// NewSpinner creates a spinner for operations with unknown total count,
// such as module discovery.
func NewSpinner(label string, opts ...Option) *Bar {
	b := newBar(label, opts)
	b.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return b
}

// NewBar creates a progress bar whose total grows as modules report the
// units they will process.
func NewBar(label string, opts ...Option) *Bar {
	b := newBar(label, opts)
	b.bar = progressbar.NewOptions(0,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return b
}

func newBar(label string, opts []Option) *Bar {
	b := &Bar{w: os.Stderr, label: label}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Func returns a callback for analyzer.NewTracker that moves the bar.
func (b *Bar) Func() analyzer.ProgressFunc {
	return func(done, total int, unit string) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if total > b.bar.GetMax() {
			b.bar.ChangeMax(total)
		}
		if unit != "" {
			b.bar.Describe(fmt.Sprintf("%s %s", b.label, filepath.Base(unit)))
		}
		_ = b.bar.Set(done)
	}
}

// Tracker returns an analyzer tracker bound to the bar.
func (b *Bar) Tracker() *analyzer.Tracker {
	return analyzer.NewTracker(b.Func())
}

// Tick advances the bar by one.
func (b *Bar) Tick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar.Add(1)
}

// FinishSuccess clears the bar completely (no output).
func (b *Bar) FinishSuccess() {
	b.finish()
}

// FinishSkipped clears the bar and prints a skip message.
func (b *Bar) FinishSkipped(reason string) {
	b.finish()
	fmt.Fprintf(b.w, "  %s skipped (%s)\n", b.label, reason)
}

// FinishError clears the bar and prints an error message.
func (b *Bar) FinishError(err error) {
	b.finish()
	fmt.Fprintf(b.w, "  %s error: %v\n", b.label, err)
}

func (b *Bar) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar.Finish()
	_ = b.bar.Clear()
}
