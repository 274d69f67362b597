package balance

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeCompleted         Outcome = "completed"
	OutcomeAbortedInfeasible Outcome = "aborted_infeasible"
	// OutcomePlanned marks a dry run.
	OutcomePlanned Outcome = "planned"
)

// LabelPlan is the allocation for one label of the deficient category.
type LabelPlan struct {
	Label     string
	Count     int
	Weight    float64
	Allocated int
	// Expected is the label's size after augmentation if every allocated
	// image is written.
	Expected int
}

// LabelOutcome is the result of one label task.
type LabelOutcome struct {
	Label     string
	Requested int
	Planned   int
	Written   int
	Err       error
}

// Report describes a run or a plan.
type Report struct {
	RunID      string
	Engine     string
	Seed       uint64
	Multiplier int

	Categories []CategoryCount
	Decision   Decision
	Gate       Gate
	Plan       []LabelPlan

	Outcome Outcome
	Labels  []LabelOutcome
	Copy    CopyStats

	StartedAt time.Time
	Duration  time.Duration
}

// Allocation returns the allocated images per label.
func (r *Report) Allocation() map[string]int {
	out := make(map[string]int, len(r.Plan))
	for _, p := range r.Plan {
		out[p.Label] = p.Allocated
	}
	return out
}

// Written sums the images generated across labels.
func (r *Report) Written() int {
	total := 0
	for _, l := range r.Labels {
		total += l.Written
	}
	return total
}

// Failed returns the label tasks that returned an error.
func (r *Report) Failed() []LabelOutcome {
	var failed []LabelOutcome
	for _, l := range r.Labels {
		if l.Err != nil {
			failed = append(failed, l)
		}
	}
	return failed
}

// WriteSummary renders a human-readable summary of the report.
func (r *Report) WriteSummary(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s (%s)\n", r.RunID, r.Outcome)
	fmt.Fprintf(&sb, "  engine=%s seed=%d multiplier=%d total_multiplier=%d\n",
		r.Engine, r.Seed, r.Multiplier, 2*r.Multiplier+1)
	for _, c := range r.Categories {
		parts := make([]string, len(c.Labels))
		for i, l := range c.Labels {
			parts[i] = fmt.Sprintf("%s=%s", l.Label, humanize.Comma(int64(l.Count)))
		}
		fmt.Fprintf(&sb, "  category %s: %s images (%s)\n", c.ID, humanize.Comma(int64(c.Count)), strings.Join(parts, ", "))
	}
	fmt.Fprintf(&sb, "  deficient category %s, deficit %s\n", r.Decision.Deficient, humanize.Comma(int64(r.Decision.Deficit)))

	verdict := "feasible"
	if !r.Gate.Feasible {
		verdict = "infeasible"
	}
	fmt.Fprintf(&sb, "  gate (%s): capacity %s vs deficit %s: %s\n",
		r.Gate.Policy, humanize.Comma(int64(r.Gate.Capacity)), humanize.Comma(int64(r.Decision.Deficit)), verdict)

	for _, p := range r.Plan {
		fmt.Fprintf(&sb, "  label %s: count %d weight %.3f allocated %d expected %d\n",
			p.Label, p.Count, p.Weight, p.Allocated, p.Expected)
	}
	if r.Copy.Files > 0 {
		fmt.Fprintf(&sb, "  copied %s files (%s)\n", humanize.Comma(int64(r.Copy.Files)), humanize.Bytes(uint64(r.Copy.Bytes)))
	}
	for _, l := range r.Labels {
		if l.Err != nil {
			fmt.Fprintf(&sb, "  label %s: FAILED after %d/%d images: %v\n", l.Label, l.Written, l.Requested, l.Err)
			continue
		}
		fmt.Fprintf(&sb, "  label %s: wrote %d/%d images\n", l.Label, l.Written, l.Requested)
	}
	if r.Duration > 0 {
		fmt.Fprintf(&sb, "  finished in %s\n", r.Duration.Round(time.Millisecond))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
