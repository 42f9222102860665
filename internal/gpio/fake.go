package gpio

import "sync"

// FakeSwitch is a test double recording relay writes.
type FakeSwitch struct {
	mu sync.Mutex

	// Writes holds every level passed to Write, in order.
	Writes    []int
	Level     int
	Direction Direction
	ActiveLow bool
	Closed    bool

	// WriteError, if set, will be returned by Write()
	WriteError error
}

// NewFakeSwitch creates a FakeSwitch resting at level.
func NewFakeSwitch(level int) *FakeSwitch {
	return &FakeSwitch{Level: level}
}

// Write records the level.
func (f *FakeSwitch) Write(level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, level)
	f.Level = level
	return nil
}

// SetDirection records the direction and drives its level.
func (f *FakeSwitch) SetDirection(d Direction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Direction = d
	f.Level = d.Level()
	return nil
}

// SetActiveLow records the polarity.
func (f *FakeSwitch) SetActiveLow(activeLow bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ActiveLow = activeLow
	return nil
}

// Close marks the switch as closed.
func (f *FakeSwitch) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// WriteLog returns a copy of the recorded writes.
func (f *FakeSwitch) WriteLog() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.Writes...)
}

// FakeSensor is a test double for a position sensor. Set changes the level
// and invokes the handler when the transition matches the configured edge,
// like the kernel would.
type FakeSensor struct {
	mu      sync.Mutex
	level   int
	edge    Edge
	handler InterruptHandler
	closed  bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeSensor creates a FakeSensor reading level.
func NewFakeSensor(level int) *FakeSensor {
	return &FakeSensor{level: level}
}

// Read returns the current level.
func (f *FakeSensor) Read() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	return f.level, nil
}

// SetEdge records the edge.
func (f *FakeSensor) SetEdge(e Edge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edge = e
	return nil
}

// Watch registers the handler.
func (f *FakeSensor) Watch(h InterruptHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handler != nil {
		return ErrAlreadyWatching
	}
	f.handler = h
	return nil
}

// Unwatch removes the handler.
func (f *FakeSensor) Unwatch() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = nil
	return nil
}

// Close marks the sensor as closed.
func (f *FakeSensor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.handler = nil
	return nil
}

// Set changes the level. It reports whether the handler was invoked.
func (f *FakeSensor) Set(level int) bool {
	f.mu.Lock()
	changed := f.level != level
	f.level = level
	h, edge := f.handler, f.edge
	f.mu.Unlock()

	if !changed || h == nil || !edge.Matches(level) {
		return false
	}
	h(level, nil)
	return true
}

// Fail delivers an interrupt transport error to the handler.
func (f *FakeSensor) Fail(err error) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(0, err)
	}
}

// Watching reports whether a handler is registered.
func (f *FakeSensor) Watching() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler != nil
}

// Edge returns the configured edge.
func (f *FakeSensor) Edge() Edge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edge
}

// Closed reports whether Close was called.
func (f *FakeSensor) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
