package gatt

// MaxAttrLen is the longest attribute value ATT can carry.
const MaxAttrLen = 512

// DefaultPrepareQueueLen bounds a PrepareQueue created with limit 0.
const DefaultPrepareQueueLen = 32

// ReadBlob returns the part of value that a read at offset carries on a
// link with the given MTU: at most mtu-1 bytes, starting at offset. An
// offset past the end of value yields StatusInvalidOffset.
func ReadBlob(value []byte, offset, mtu uint16) ([]byte, Status) {
	if int(offset) > len(value) {
		return nil, StatusInvalidOffset
	}
	if mtu < DefaultMTU {
		mtu = DefaultMTU
	}
	end := min(int(offset)+int(mtu)-1, len(value))
	return value[offset:end], StatusOK
}

// PreparedValue is the value assembled for one attribute on execute.
type PreparedValue struct {
	Handle uint16
	Value  []byte
}

type prepared struct {
	handle uint16
	offset uint16
	value  []byte
}

// PrepareQueue holds the prepared writes of one connection until they are
// executed or cancelled.
type PrepareQueue struct {
	limit   int
	entries []prepared
}

// NewPrepareQueue returns a queue accepting up to limit prepared writes.
func NewPrepareQueue(limit int) *PrepareQueue {
	if limit <= 0 {
		limit = DefaultPrepareQueueLen
	}
	return &PrepareQueue{limit: limit}
}

// Add queues a copy of value for handle at offset.
func (q *PrepareQueue) Add(handle, offset uint16, value []byte) Status {
	if len(q.entries) >= q.limit {
		return StatusPrepareQueueFull
	}
	if int(offset)+len(value) > MaxAttrLen {
		return StatusInvalidAttrLen
	}
	q.entries = append(q.entries, prepared{
		handle: handle,
		offset: offset,
		value:  append([]byte(nil), value...),
	})
	return StatusOK
}

// Execute assembles the queued writes into one value per handle, in the
// order handles were first written, and empties the queue. A write that
// would leave a gap in its value fails the whole batch with
// StatusInvalidOffset.
func (q *PrepareQueue) Execute() ([]PreparedValue, Status) {
	defer q.Cancel()

	var out []PreparedValue
	index := make(map[uint16]int)
	for _, e := range q.entries {
		i, ok := index[e.handle]
		if !ok {
			i = len(out)
			index[e.handle] = i
			out = append(out, PreparedValue{Handle: e.handle})
		}
		v := out[i].Value
		if int(e.offset) > len(v) {
			return nil, StatusInvalidOffset
		}
		if end := int(e.offset) + len(e.value); end > len(v) {
			v = append(v, make([]byte, end-len(v))...)
		}
		copy(v[e.offset:], e.value)
		out[i].Value = v
	}
	return out, StatusOK
}

// Cancel drops everything queued.
func (q *PrepareQueue) Cancel() { q.entries = nil }

// Len returns the number of queued writes.
func (q *PrepareQueue) Len() int { return len(q.entries) }
