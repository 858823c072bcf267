// Package profiling times nested phases of a CLI run and wires pprof
// profiles into cobra commands.
package profiling

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stopper ends a timed span.
type Stopper interface {
	Stop()
}

type span struct {
	name     string
	start    time.Time
	duration time.Duration
	children []*span
	profiler *Profiler
}

// Stop records the span duration and pops it.
func (s *span) Stop() {
	s.profiler.end(s, time.Since(s.start))
}

// Profiler collects a tree of spans. Spans nest by start order, so one
// profiler should time one sequential flow.
type Profiler struct {
	mu      sync.Mutex
	enabled bool
	root    *span
	stack   []*span
}

// NewProfiler creates an enabled profiler.
func NewProfiler() *Profiler {
	p := &Profiler{enabled: true}
	p.root = &span{name: "root", start: time.Now(), profiler: p}
	p.stack = []*span{p.root}
	return p
}

var (
	defaultMu       sync.Mutex
	defaultProfiler *Profiler
)

// Enable turns on the process-wide profiler.
func Enable() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultProfiler == nil {
		defaultProfiler = NewProfiler()
	}
}

// Start begins a span on the process-wide profiler. It is a no-op until
// Enable is called.
func Start(name string) Stopper {
	defaultMu.Lock()
	p := defaultProfiler
	defaultMu.Unlock()
	if p == nil {
		return noopStopper{}
	}
	return p.Start(name)
}

// Summarize prints the process-wide span tree.
func Summarize(w io.Writer) {
	defaultMu.Lock()
	p := defaultProfiler
	defaultMu.Unlock()
	if p != nil {
		p.Summarize(w)
	}
}

// Start begins a span nested under the innermost open one.
func (p *Profiler) Start(name string) Stopper {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &span{name: name, start: time.Now(), profiler: p}
	parent := p.stack[len(p.stack)-1]
	parent.children = append(parent.children, s)
	p.stack = append(p.stack, s)
	return s
}

func (p *Profiler) end(s *span, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s.duration = d
	// Spans stopped out of order close everything opened after them.
	for i := len(p.stack) - 1; i > 0; i-- {
		if p.stack[i] == s {
			p.stack = p.stack[:i]
			return
		}
	}
}

// Summarize prints the span tree with each span's share of the total.
func (p *Profiler) Summarize(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := time.Since(p.root.start)
	fmt.Fprintln(w, "\n--- Timing Profile ---")
	for _, child := range p.root.children {
		printSpan(w, child, 0, total)
	}
	fmt.Fprintln(w, "----------------------")
}

func printSpan(w io.Writer, s *span, depth int, total time.Duration) {
	pct := 0.0
	if total > 0 {
		pct = float64(s.duration) / float64(total) * 100
	}
	fmt.Fprintf(w, "%s- %s (%v, %.1f%%)\n", strings.Repeat("  ", depth), s.name, s.duration.Round(100*time.Microsecond), pct)

	sort.SliceStable(s.children, func(i, j int) bool {
		return s.children[i].start.Before(s.children[j].start)
	})
	for _, child := range s.children {
		printSpan(w, child, depth+1, total)
	}
}

type noopStopper struct{}

func (noopStopper) Stop() {}
