package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/Veraticus/orderproof/internal/model"
	"github.com/Veraticus/orderproof/internal/pipeline"
	"github.com/schollz/progressbar/v3"
)

// Progress shows a live count of processed orders. The order history has no
// known length up front, so the bar runs as a spinner.
type Progress struct {
	writer io.Writer
	bar    *progressbar.ProgressBar
	counts map[string]int
	mu     sync.Mutex
}

// NewProgress creates a progress display writing to writer.
func NewProgress(writer io.Writer) *Progress {
	if writer == nil {
		writer = os.Stderr
	}
	p := &Progress{
		writer: writer,
		counts: make(map[string]int),
	}
	p.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription("[cyan][bold]Processing orders...[reset]"),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return p
}

// OrderFinished advances the display by one order.
func (p *Progress) OrderFinished(event model.OrderEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[event.Outcome]++
	label := event.OrderID
	if label == "" {
		label = "unreadable order"
	}
	p.bar.Describe(fmt.Sprintf("[cyan]%s[reset] %s (%d failed)", label, event.Outcome, p.counts[pipeline.OutcomeFailed]))
	if err := p.bar.Add(1); err != nil {
		slog.Debug("Failed to advance progress bar", "error", err)
	}
}

// Count returns how many orders finished with the given outcome.
func (p *Progress) Count(outcome string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[outcome]
}

// Finish stops the display.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.bar.Finish(); err != nil {
		slog.Debug("Failed to finish progress bar", "error", err)
	}
}
