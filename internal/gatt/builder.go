package gatt

import (
	"fmt"
	"log/slog"
)

// TableCreator is the part of the stack that materializes attribute
// tables. The result of CreateAttrTable arrives later as an event.
type TableCreator interface {
	CreateAttrTable(iface Interface, table []Attribute, instID uint8) error
}

// Builder turns attribute tables into handle ranges on the stack.
//
// The first entry of every table must be a service declaration. Builder
// does not check this; the stack rejects malformed tables with a status in
// the completion event.
type Builder struct {
	creator TableCreator
	log     *slog.Logger
}

// NewBuilder returns a Builder submitting tables to c.
func NewBuilder(c TableCreator, log *slog.Logger) *Builder {
	if c == nil {
		panic("gatt: NewBuilder called with nil creator")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Builder{creator: c, log: log}
}

// Build requests one handle per entry of table for the application
// registered as iface. A returned error means the request was never
// accepted and no completion event will follow.
func (b *Builder) Build(iface Interface, table []Attribute, instID uint8) error {
	b.log.Debug("[GATTS] create attribute table", "gatts_if", iface, "entries", len(table), "inst_id", instID)
	if err := b.creator.CreateAttrTable(iface, table, instID); err != nil {
		return fmt.Errorf("gatt: create attribute table: %w: %w", ErrStackRejected, err)
	}
	return nil
}

// Complete converts a table-created completion into the handle range of a
// table with want entries. A non-success status yields a *StatusError; the
// caller must not start the service in that case.
func (b *Builder) Complete(status Status, handles []uint16, want int) (HandleRange, error) {
	if err := Rejected("create attribute table", status); err != nil {
		return HandleRange{}, err
	}
	if len(handles) != want {
		return HandleRange{}, fmt.Errorf("gatt: table created with %d handles, want %d", len(handles), want)
	}
	return NewHandleRange(handles)
}
