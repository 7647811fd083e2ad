// Package timing provides a hierarchical wall-clock profiler for
// compilation passes. Sections nest via Begin/End pairs and the
// recorded events are written out in the Chrome trace-event format, so
// a trace can be inspected in chrome://tracing or Perfetto.
package timing

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Event is one completed profiling section
type Event struct {
	Name   string
	Detail string
	Start  time.Duration // offset from profiler creation
	Dur    time.Duration
}

type open struct {
	name   string
	detail string
	start  time.Time
}

// Profiler records nested timing sections. A nil *Profiler is valid and
// records nothing, so callers can pass one through unconditionally.
type Profiler struct {
	zero   time.Time
	stack  []open
	events []Event
}

// New creates a profiler with its time origin at the call
func New() *Profiler {
	return &Profiler{zero: time.Now()}
}

// Begin opens a section. Sections opened while another is still open
// nest inside it.
func (p *Profiler) Begin(name, detail string) {
	if p == nil {
		return
	}
	p.stack = append(p.stack, open{name: name, detail: detail, start: time.Now()})
}

// End closes the innermost open section
func (p *Profiler) End() {
	if p == nil || len(p.stack) == 0 {
		return
	}
	top := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	p.events = append(p.events, Event{
		Name:   top.name,
		Detail: top.detail,
		Start:  top.start.Sub(p.zero),
		Dur:    time.Since(top.start),
	})
}

// Events returns the completed sections in completion order
func (p *Profiler) Events() []Event {
	if p == nil {
		return nil
	}
	return p.events
}

type traceEvent struct {
	PID  int            `json:"pid"`
	TID  int            `json:"tid"`
	Ph   string         `json:"ph"`
	Ts   int64          `json:"ts"`
	Dur  int64          `json:"dur"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type traceFile struct {
	TraceEvents     []traceEvent `json:"traceEvents"`
	DisplayTimeUnit string       `json:"displayTimeUnit"`
}

// Write emits the recorded sections as Chrome trace-event JSON
func (p *Profiler) Write(w io.Writer) error {
	if p == nil {
		return nil
	}
	if len(p.stack) != 0 {
		return fmt.Errorf("timing: %d sections still open", len(p.stack))
	}
	tf := traceFile{DisplayTimeUnit: "ns", TraceEvents: []traceEvent{}}
	for _, e := range p.events {
		ev := traceEvent{
			PID:  1,
			Ph:   "X",
			Ts:   e.Start.Microseconds(),
			Dur:  e.Dur.Microseconds(),
			Name: e.Name,
		}
		if e.Detail != "" {
			ev.Args = map[string]any{"detail": e.Detail}
		}
		tf.TraceEvents = append(tf.TraceEvents, ev)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}
