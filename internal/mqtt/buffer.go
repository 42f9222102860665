package mqtt

import log "github.com/sirupsen/logrus"

// defaultBufferSize bounds the messages held while the broker is unreachable.
const defaultBufferSize = 100

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf     []bufferedMsg
	head    int // next write position
	count   int
	dropped int // messages overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	full := r.count == len(r.buf)
	if full {
		if r.dropped == 0 {
			log.WithField("capacity", len(r.buf)).Warn("mqtt: buffer full, dropping oldest")
		}
		r.dropped++
	} else {
		r.count++
	}
	// When full, head already points at the oldest message.
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
}

// drainAll returns the buffered messages oldest first and empties the
// buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	result := make([]bufferedMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range result {
		result[i] = r.buf[(start+i)%len(r.buf)]
	}

	if r.dropped > 0 {
		log.WithField("dropped", r.dropped).Warn("mqtt: messages lost while disconnected")
	}
	r.count = 0
	r.head = 0
	r.dropped = 0
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
