package parser

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// Buffer sizing request was rejected.
	ErrAllocation = errors.New("Allocation error")

	// Attempted access outside of an owned region.
	ErrBufferOverflow = errors.New("Buffer overflow")

	// Null, empty or mismatched arguments from a caller.
	ErrInvalidParameter = errors.New("Invalid parameter")

	// End of journal. This is not a real failure and iteration
	// treats it as normal termination.
	ErrNoMoreItems = errors.New("No more items")

	// Length field inconsistent with the buffer, or an
	// unrecognized version tag.
	ErrMalformedRecord = errors.New("Malformed record")

	// The journal was deleted but could not be recreated. The
	// volume is left without a change journal.
	ErrPartialJournalReset = errors.New("Partial journal reset")

	// A visitor may return this to stop a walk early. Walkers do
	// not report it as an error.
	ErrStopWalk = errors.New("Stop walk")

	ErrNotSupported      = errors.New("Not supported")
	ErrInvalidVolumeData = errors.New("Invalid volume data")
	ErrSessionClosed     = errors.New("Session closed")

	// Matches any *TransportError
	ErrTransport = errors.New("Transport error")
)

// TransportError preserves the OS code of a failed control call.
type TransportError struct {
	Op   string
	Code uint32
	Err  error
}

func (self *TransportError) Error() string {
	return fmt.Sprintf("%v: %v (code %#x)", self.Op, self.Err, self.Code)
}

func (self *TransportError) Unwrap() error {
	return self.Err
}

func (self *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func NewTransportError(op string, code uint32, err error) *TransportError {
	if err == nil {
		err = ErrTransport
	}
	return &TransportError{Op: op, Code: code, Err: err}
}

// MalformedRecordError describes where a walk gave up. Records before
// Offset were already delivered to the visitor.
type MalformedRecordError struct {
	Kind   string
	Offset int64
	Reason string
}

func (self *MalformedRecordError) Error() string {
	return fmt.Sprintf("Malformed %v at offset %#x: %v",
		self.Kind, self.Offset, self.Reason)
}

func (self *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

func malformed(kind string, offset int64, format string, args ...interface{}) error {
	STATS.Inc_Malformed()
	return &MalformedRecordError{
		Kind:   kind,
		Offset: offset,
		Reason: fmt.Sprintf(format, args...),
	}
}

// PartialResetError is returned when the delete step of a reset
// succeeded but the create step failed.
type PartialResetError struct {
	JournalID       uint64
	MaxSize         uint64
	AllocationDelta uint64
	Err             error
}

func (self *PartialResetError) Error() string {
	return fmt.Sprintf(
		"Journal %#x was deleted but could not be recreated "+
			"(max size %v, allocation delta %v): %v",
		self.JournalID, self.MaxSize, self.AllocationDelta, self.Err)
}

func (self *PartialResetError) Unwrap() error {
	return self.Err
}

func (self *PartialResetError) Is(target error) bool {
	return target == ErrPartialJournalReset
}
