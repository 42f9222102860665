package logic

import "time"

// StatsKind identifies a stats record.
type StatsKind int

const (
	StatsOpened StatsKind = iota
	StatsClosed
	StatsObstructed
	StatsCleared
)

var statsKindNames = [...]string{
	StatsOpened:     "opened",
	StatsClosed:     "closed",
	StatsObstructed: "obstruction detected",
	StatsCleared:    "obstruction corrected",
}

func (k StatsKind) String() string {
	if k < 0 || int(k) >= len(statsKindNames) {
		return "unknown"
	}
	return statsKindNames[k]
}

// StatsRecord is emitted by Stats on open/close and obstruction changes.
type StatsRecord struct {
	Kind  StatsKind
	Time  time.Time
	State DoorState
	// Source is who moved the door for StatsOpened/StatsClosed.
	Source Source
	// Duration is the open time (StatsClosed) or obstructed time
	// (StatsCleared), truncated to whole seconds. Zero otherwise.
	Duration time.Duration
	// OpenSource is set on StatsClosed to who opened the door.
	OpenSource Source
}

// Stats derives open and obstruction durations from resting states.
// It never influences transitions.
type Stats struct {
	openAt     time.Time
	openSource Source

	obstructionStart time.Time
	obstructionEnd   time.Time
}

// Observe records a resting state. openOrClosed is OPEN for a partially open
// (STOPPED) door.
func (s *Stats) Observe(now time.Time, openOrClosed DoorState, obstruction bool, source Source) []StatsRecord {
	var records []StatsRecord

	switch openOrClosed {
	case Open, Stopped:
		if s.openAt.IsZero() {
			s.openAt = now
			s.openSource = source
			records = append(records, StatsRecord{Kind: StatsOpened, Time: now, State: openOrClosed, Source: source})
		}
	case Closed:
		if !s.openAt.IsZero() {
			records = append(records, StatsRecord{
				Kind:       StatsClosed,
				Time:       now,
				State:      Closed,
				Source:     source,
				OpenSource: s.openSource,
				Duration:   elapsed(s.openAt, now),
			})
			s.openAt = time.Time{}
			s.openSource = SourceManual
		}
	}

	if obstruction && s.obstructionStart.IsZero() {
		s.obstructionStart = now
		records = append(records, StatsRecord{Kind: StatsObstructed, Time: now, State: openOrClosed})
	} else if !obstruction && !s.obstructionStart.IsZero() {
		s.obstructionEnd = now
		records = append(records, StatsRecord{
			Kind:     StatsCleared,
			Time:     now,
			State:    openOrClosed,
			Duration: elapsed(s.obstructionStart, s.obstructionEnd),
		})
		s.obstructionStart = time.Time{}
		s.obstructionEnd = time.Time{}
	}

	return records
}

// OpenSince returns when the door was last seen leaving CLOSED, or the zero
// time if it is closed.
func (s *Stats) OpenSince() time.Time {
	return s.openAt
}

// ObstructedSince returns the start of the current obstruction episode, or
// the zero time.
func (s *Stats) ObstructedSince() time.Time {
	return s.obstructionStart
}

func elapsed(from, to time.Time) time.Duration {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Second)
}
