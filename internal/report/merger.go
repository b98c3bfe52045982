// Package report renders and records the event logs of a completed run.
package report

import (
	"github.com/TritonDataCenter/toshstomp/pkg/types"
)

// EventKind distinguishes the two event records an operation produces.
type EventKind int

const (
	// EventStart marks the moment an operation was handed to a worker.
	EventStart EventKind = iota
	// EventDone marks the moment its transfer completed.
	EventDone
)

// Event is one entry in the merged report stream.
type Event struct {
	Kind EventKind
	Op   *types.Operation
}

// Time returns the stamp that positions the event in the merged stream.
func (e Event) Time() int64 {
	if e.Kind == EventStart {
		return e.Op.Start
	}
	return e.Op.Done
}

// Merge interleaves the start and done logs into one stream ordered by
// event time. Both inputs are already ordered, so a single forward pass
// suffices: before each done event, every start event that does not
// postdate it is emitted. A start and a done carrying the same stamp
// therefore come out start first.
func Merge(startLog, doneLog []*types.Operation) []Event {
	events := make([]Event, 0, len(startLog)+len(doneLog))
	si := 0
	for _, op := range doneLog {
		for si < len(startLog) && startLog[si].Start <= op.Done {
			events = append(events, Event{Kind: EventStart, Op: startLog[si]})
			si++
		}
		events = append(events, Event{Kind: EventDone, Op: op})
	}
	for ; si < len(startLog); si++ {
		events = append(events, Event{Kind: EventStart, Op: startLog[si]})
	}
	return events
}
