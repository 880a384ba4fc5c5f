// Package progress reports byte-level transfer progress for CLI uploads.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives progress updates during a transfer.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
}

// CLIReporter renders a progress bar on stderr.
type CLIReporter struct {
	bar *progressbar.ProgressBar
}

// NewCLIReporter creates a progress reporter for interactive use.
func NewCLIReporter() *CLIReporter {
	return &CLIReporter{}
}

// Start initializes the progress bar with total size and description.
func (p *CLIReporter) Start(total int64, description string) {
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the progress bar to the current position.
func (p *CLIReporter) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the progress bar.
func (p *CLIReporter) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// NoopReporter discards all updates, for quiet runs where interleaved bars
// would garble the terminal.
type NoopReporter struct{}

func NewNoopReporter() *NoopReporter { return &NoopReporter{} }

func (p *NoopReporter) Start(total int64, description string) {}
func (p *NoopReporter) Update(current int64)                  {}
func (p *NoopReporter) Finish()                               {}

// Reader wraps an io.Reader and reports cumulative bytes read.
type Reader struct {
	reader   io.Reader
	reporter Reporter
	current  int64
}

// NewReader creates a progress-reporting reader.
func NewReader(r io.Reader, reporter Reporter) *Reader {
	return &Reader{reader: r, reporter: reporter}
}

// Read implements io.Reader with progress reporting.
func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	pr.reporter.Update(pr.current)
	return n, err
}
