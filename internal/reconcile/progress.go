package reconcile

import "sync/atomic"

// Progress is the shared per-job state workers mutate. Counters are
// atomic; total is fixed at dispatch time. Each worker marks its record
// processed exactly once, so processed never exceeds total.
type Progress struct {
	total     int64
	processed atomic.Int64
	failed    atomic.Int64
}

func NewProgress(total int) *Progress {
	return &Progress{total: int64(total)}
}

// MarkProcessed records one record reaching a terminal state.
func (p *Progress) MarkProcessed() { p.processed.Add(1) }

// MarkFailed records a transport failure after retry exhaustion. Failed
// records still count as processed; the two counters are independent.
func (p *Progress) MarkFailed() { p.failed.Add(1) }

func (p *Progress) Total() int64     { return p.total }
func (p *Progress) Processed() int64 { return p.processed.Load() }
func (p *Progress) Failed() int64    { return p.failed.Load() }

// Done reports whether every dispatched record reached a terminal state.
func (p *Progress) Done() bool { return p.processed.Load() >= p.total }
