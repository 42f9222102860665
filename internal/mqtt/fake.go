package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/garage-door/internal/logic"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// States contains all door statuses that were published.
	States []logic.Status

	// StatePayloads contains the JSON payloads for door statuses.
	StatePayloads [][]byte

	// Stats contains all stats records that were published.
	Stats []logic.StatsRecord

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishState and PublishStats.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// OnCommand receives commands passed to Deliver.
	OnCommand CommandHandler
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishState records the door status.
func (f *FakePublisher) PublishState(st logic.Status, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatState(st, at)
	if err != nil {
		return err
	}
	f.States = append(f.States, st)
	f.StatePayloads = append(f.StatePayloads, payload)
	return nil
}

// PublishStats records the stats record.
func (f *FakePublisher) PublishStats(r logic.StatsRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Stats = append(f.Stats, r)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Deliver simulates a message on the command topic.
func (f *FakePublisher) Deliver(payload []byte) error {
	target, err := ParseCommand(payload)
	if err != nil {
		return err
	}
	if f.OnCommand != nil {
		f.OnCommand(target)
	}
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// LastState returns the most recent door status and whether one was
// published.
func (f *FakePublisher) LastState() (logic.Status, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.States) == 0 {
		return logic.Status{}, false
	}
	return f.States[len(f.States)-1], true
}

// SystemEventNames returns the Event field of every system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// LastSystemEvent returns the most recent system event and whether one was
// published.
func (f *FakePublisher) LastSystemEvent() (SystemEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.SystemEvents) == 0 {
		return SystemEvent{}, false
	}
	return f.SystemEvents[len(f.SystemEvents)-1], true
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.States = nil
	f.StatePayloads = nil
	f.Stats = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
