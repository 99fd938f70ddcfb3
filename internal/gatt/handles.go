package gatt

import "fmt"

// A HandleRange is the contiguous range of attribute handles the stack
// assigned to one attribute table, one handle per table entry and in
// table order. The first handle is always the service handle.
type HandleRange struct {
	base uint16 // handle of the first table entry
	n    int
}

// NewHandleRange validates handles as returned by the stack and returns
// the range they span.
func NewHandleRange(handles []uint16) (HandleRange, error) {
	if len(handles) == 0 {
		return HandleRange{}, fmt.Errorf("gatt: empty handle list")
	}
	if handles[0] == 0 {
		return HandleRange{}, fmt.Errorf("gatt: handle 0 is reserved")
	}
	for i := 1; i < len(handles); i++ {
		if handles[i] != handles[0]+uint16(i) {
			return HandleRange{}, fmt.Errorf("gatt: handles not contiguous at index %d: %d after %d", i, handles[i], handles[i-1])
		}
	}
	if int(handles[0])+len(handles)-1 > 0xffff {
		return HandleRange{}, fmt.Errorf("gatt: handle range overflows")
	}
	return HandleRange{base: handles[0], n: len(handles)}, nil
}

// IsZero reports whether r is the empty range of an unbuilt table.
func (r HandleRange) IsZero() bool { return r.n == 0 }

// Service returns the service handle.
func (r HandleRange) Service() uint16 { return r.base }

// Len returns the number of handles.
func (r HandleRange) Len() int { return r.n }

// End returns the last handle of the range.
func (r HandleRange) End() uint16 {
	if r.n == 0 {
		return 0
	}
	return r.base + uint16(r.n-1)
}

// Index returns the table index of handle h, or false when h lies
// outside the range.
func (r HandleRange) Index(h uint16) (int, bool) {
	off := int(h) - int(r.base)
	if r.n == 0 || off < 0 || off >= r.n {
		return 0, false
	}
	return off, true
}

// Contains reports whether h belongs to the range.
func (r HandleRange) Contains(h uint16) bool {
	_, ok := r.Index(h)
	return ok
}

func (r HandleRange) String() string {
	if r.n == 0 {
		return "[]"
	}
	return fmt.Sprintf("[0x%04x-0x%04x]", r.base, r.End())
}
