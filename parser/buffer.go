package parser

import (
	"bytes"
)

const (
	// Largest buffer we are prepared to allocate (256mb). Journal
	// pages and MFT records are much smaller than this.
	MaxBufferCapacity = 256 * 1024 * 1024
)

// Buffer owns a contiguous byte region of a fixed capacity. All
// access is bounds checked against the capacity and fails closed:
// on error the buffer is never touched.
//
// Slices returned by CopyOut() and Bytes() borrow the region and
// become invalid after the next Resize().
type Buffer struct {
	data []byte

	// Logical size - how much of the region holds valid data.
	size int
}

func NewBuffer(capacity int) (*Buffer, error) {
	if capacity < 0 {
		return nil, ErrInvalidParameter
	}

	if capacity > MaxBufferCapacity {
		return nil, ErrAllocation
	}

	return &Buffer{data: make([]byte, capacity)}, nil
}

// NewBufferFromBytes copies data into a new buffer of exactly the
// same size.
func NewBufferFromBytes(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, ErrInvalidParameter
	}

	result, err := NewBuffer(len(data))
	if err != nil {
		return nil, err
	}

	return result, result.CopyIn(0, data)
}

func (self *Buffer) Capacity() int {
	if self == nil {
		return 0
	}
	return len(self.data)
}

func (self *Buffer) Len() int {
	if self == nil {
		return 0
	}
	return self.size
}

// SetLen records how many bytes of the region are valid. Transports
// call this after filling Bytes().
func (self *Buffer) SetLen(size int) error {
	if self == nil {
		return ErrInvalidParameter
	}

	if size < 0 || size > len(self.data) {
		return ErrBufferOverflow
	}
	self.size = size
	return nil
}

// Bytes exposes the full region to a transport which fills it.
func (self *Buffer) Bytes() []byte {
	if self == nil {
		return nil
	}
	return self.data[:len(self.data):len(self.data)]
}

// Valid returns the logical content of the buffer.
func (self *Buffer) Valid() []byte {
	if self == nil {
		return nil
	}
	return self.data[:self.size:self.size]
}

// Resize grows the region to new_capacity. The contents are zeroed
// after a resize. Shrinking is a no-op.
func (self *Buffer) Resize(new_capacity int) error {
	if self == nil || new_capacity < 0 {
		return ErrInvalidParameter
	}

	if new_capacity > MaxBufferCapacity {
		return ErrAllocation
	}

	if new_capacity <= len(self.data) {
		self.Clear()
		return nil
	}

	self.data = make([]byte, new_capacity)
	self.size = 0
	return nil
}

// CopyIn copies src into the region at offset.
func (self *Buffer) CopyIn(offset int, src []byte) error {
	if self == nil || len(src) == 0 || offset < 0 {
		return ErrInvalidParameter
	}

	if offset > len(self.data)-len(src) {
		return ErrBufferOverflow
	}

	copy(self.data[offset:], src)
	if offset+len(src) > self.size {
		self.size = offset + len(src)
	}
	return nil
}

// CopyOut returns a borrowed view of length bytes at offset. The
// result may not be appended to.
func (self *Buffer) CopyOut(offset, length int) ([]byte, error) {
	if self == nil || length <= 0 || offset < 0 {
		return nil, ErrInvalidParameter
	}

	if offset > len(self.data)-length {
		return nil, ErrBufferOverflow
	}

	end := offset + length
	return self.data[offset:end:end], nil
}

// Compare reports if the start of the region is equal to data.
func (self *Buffer) Compare(data []byte) (bool, error) {
	if self == nil || len(data) == 0 {
		return false, ErrInvalidParameter
	}

	if len(data) > len(self.data) {
		return false, ErrBufferOverflow
	}

	return bytes.Equal(self.data[:len(data)], data), nil
}

// Clear zeroes the entire region.
func (self *Buffer) Clear() {
	if self == nil {
		return
	}

	for i := range self.data {
		self.data[i] = 0
	}
	self.size = 0
}
