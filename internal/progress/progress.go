// Terminal progress reporting
package progress

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker counts completed units of work. Implementations are safe for
// concurrent use.
type Tracker interface {
	Add(n int)
}

// Nop ignores progress.
type Nop struct{}

func (Nop) Add(int) {}

// Bar renders a progress bar to a writer, normally stderr.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar sized for total units.
func New(w io.Writer, total int, description string) *Bar {
	return &Bar{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		),
	}
}

func (b *Bar) Add(n int) {
	_ = b.bar.Add(n)
}

// Finish renders the bar at 100% and ends its line.
func (b *Bar) Finish() {
	_ = b.bar.Finish()
}

// Counter is a Tracker that only counts.
type Counter struct {
	total atomic.Int64
}

func (c *Counter) Add(n int) { c.total.Add(int64(n)) }

// Total returns the sum of every Add.
func (c *Counter) Total() int { return int(c.total.Load()) }
