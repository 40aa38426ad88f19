package datatransfer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// minElapsed guards the throughput division right after a transfer starts.
const minElapsed = time.Millisecond

// DefaultRenderInterval bounds how often a progress line is redrawn.
const DefaultRenderInterval = 100 * time.Millisecond

// ProgressState is the progress of a single file. It is reset for every file.
type ProgressState struct {
	Name             string
	BytesTransferred int64
	TotalBytes       int64
	StartTime        time.Time
}

// Percent returns sent/total as a percentage clamped to [0, 100]. An empty
// file is complete from the start.
func Percent(sent, total int64) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(sent) / float64(total) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Throughput returns bytes per second, or 0 while elapsed is too small to
// give a meaningful rate.
func Throughput(sent int64, elapsed time.Duration) float64 {
	if elapsed < minElapsed || sent <= 0 {
		return 0
	}
	return float64(sent) / elapsed.Seconds()
}

// FormatProgress renders s as a single line, e.g.
// "data.bin  47.3% 12 MB / 25 MB 3.1 MB/s".
func FormatProgress(s ProgressState, now time.Time) string {
	sent := s.BytesTransferred
	if sent < 0 {
		sent = 0
	}
	total := s.TotalBytes
	if total < 0 {
		total = 0
	}
	rate := Throughput(sent, now.Sub(s.StartTime))
	return fmt.Sprintf("%s %5.1f%% %s / %s %s/s",
		s.Name,
		Percent(sent, total),
		humanize.Bytes(uint64(sent)),
		humanize.Bytes(uint64(total)),
		humanize.Bytes(uint64(rate)),
	)
}

// Reporter presents the progress of one file at a time.
type Reporter interface {
	// Begin starts reporting a new file.
	Begin(name string)
	// Update has the ProgressFunc signature and is passed to CopyFile.
	Update(sent, total int64)
	// Finish ends reporting of the current file.
	Finish(result TransferResult, err error)
}

// NopReporter discards progress.
type NopReporter struct{}

func (NopReporter) Begin(string)                 {}
func (NopReporter) Update(int64, int64)          {}
func (NopReporter) Finish(TransferResult, error) {}

// NewConsoleReporter picks a progress bar when f is a terminal and plain
// carriage-return lines otherwise.
func NewConsoleReporter(f *os.File) Reporter {
	if term.IsTerminal(int(f.Fd())) {
		return NewBarReporter(f)
	}
	return NewLineReporter(f)
}

// LineReporter redraws a single line with FormatProgress, at most once per
// interval plus a final line when the file completes.
type LineReporter struct {
	w        io.Writer
	interval time.Duration
	now      func() time.Time

	state     ProgressState
	lastDraw  time.Time
	lastWidth int
}

// NewLineReporter creates a LineReporter writing to w.
func NewLineReporter(w io.Writer) *LineReporter {
	return &LineReporter{
		w:        w,
		interval: DefaultRenderInterval,
		now:      time.Now,
	}
}

func (r *LineReporter) Begin(name string) {
	r.state = ProgressState{Name: name, StartTime: r.now()}
	r.lastDraw = time.Time{}
	r.lastWidth = 0
}

func (r *LineReporter) Update(sent, total int64) {
	r.state.BytesTransferred = sent
	r.state.TotalBytes = total

	now := r.now()
	if sent < total && !r.lastDraw.IsZero() && now.Sub(r.lastDraw) < r.interval {
		return
	}
	r.draw(now)
}

func (r *LineReporter) Finish(_ TransferResult, err error) {
	r.draw(r.now())
	if err != nil {
		fmt.Fprint(r.w, " failed")
	}
	fmt.Fprintln(r.w)
}

func (r *LineReporter) draw(now time.Time) {
	r.lastDraw = now
	line := FormatProgress(r.state, now)
	pad := ""
	if n := r.lastWidth - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	r.lastWidth = len(line)
	fmt.Fprintf(r.w, "\r%s%s", line, pad)
}

// BarReporter renders a progressbar/v3 bar per file.
type BarReporter struct {
	w     io.Writer
	name  string
	bar   *progressbar.ProgressBar
	start time.Time
	empty bool
}

// NewBarReporter creates a BarReporter writing to w.
func NewBarReporter(w io.Writer) *BarReporter {
	return &BarReporter{w: w}
}

func (r *BarReporter) Begin(name string) {
	r.name = name
	r.bar = nil
	r.empty = false
	r.start = time.Now()
}

func (r *BarReporter) Update(sent, total int64) {
	if total <= 0 {
		// progressbar treats a zero max as indeterminate; an empty file is done.
		if !r.empty {
			r.empty = true
			fmt.Fprintln(r.w, FormatProgress(ProgressState{Name: r.name, StartTime: r.start}, time.Now()))
		}
		return
	}
	if r.bar == nil {
		r.bar = progressbar.NewOptions64(total,
			progressbar.OptionSetDescription(r.name),
			progressbar.OptionSetWriter(r.w),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(DefaultRenderInterval),
			progressbar.OptionShowCount(),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(r.w) }),
		)
	}
	_ = r.bar.Set64(sent)
}

func (r *BarReporter) Finish(_ TransferResult, err error) {
	if r.bar == nil {
		return
	}
	if err != nil {
		_ = r.bar.Exit()
		fmt.Fprintln(r.w)
		return
	}
	_ = r.bar.Finish()
}
