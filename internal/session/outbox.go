package session

// Outbox is a bounded FIFO of encoded frames. Pushing past capacity drops the
// oldest frame. Not safe for concurrent use; Manager guards it.
type Outbox struct {
	buf   [][]byte
	head  int
	count int
}

func NewOutbox(capacity int) *Outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Outbox{buf: make([][]byte, capacity)}
}

// Push appends f and reports whether an older frame was dropped.
func (o *Outbox) Push(f []byte) (dropped bool) {
	if o.count == len(o.buf) {
		o.buf[o.head] = nil
		o.head = (o.head + 1) % len(o.buf)
		o.count--
		dropped = true
	}
	o.buf[(o.head+o.count)%len(o.buf)] = f
	o.count++
	return dropped
}

// Drain removes and returns every frame, oldest first.
func (o *Outbox) Drain() [][]byte {
	out := make([][]byte, 0, o.count)
	for o.count > 0 {
		out = append(out, o.buf[o.head])
		o.buf[o.head] = nil
		o.head = (o.head + 1) % len(o.buf)
		o.count--
	}
	o.head = 0
	return out
}

func (o *Outbox) Len() int { return o.count }
func (o *Outbox) Cap() int { return len(o.buf) }
