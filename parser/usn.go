package parser

import (
	"fmt"

	"github.com/pkg/errors"
)

// Parse USN records
// https://docs.microsoft.com/en-us/windows/win32/api/winioctl/ns-winioctl-usn_record_v2
// https://docs.microsoft.com/en-us/windows/win32/api/winioctl/ns-winioctl-usn_record_v3
// https://docs.microsoft.com/en-us/windows/win32/api/winioctl/ns-winioctl-usn_record_v4

// USN_RECORD is one decoded change journal record. Exactly one of
// V2, V3 or V4 is set according to the major version.
//
// The record borrows the page it was decoded from and is only valid
// until the visitor returns. The file name is a copy.
type USN_RECORD struct {
	V2 *USN_RECORD_V2
	V3 *USN_RECORD_V3
	V4 *USN_RECORD_V4

	// Offset of the record inside the page payload.
	Offset int64

	Raw []byte

	filename           string
	filename_truncated bool
}

func (self *USN_RECORD) RecordLength() uint32 {
	return getUint32(self.Raw, 0)
}

func (self *USN_RECORD) MajorVersion() uint16 {
	return getUint16(self.Raw, 4)
}

func (self *USN_RECORD) MinorVersion() uint16 {
	return getUint16(self.Raw, 6)
}

func (self *USN_RECORD) FileReferenceNumber() FileReference {
	switch {
	case self.V2 != nil:
		return NewFileReference64(self.V2.FileReferenceNumber())
	case self.V3 != nil:
		return self.V3.FileReferenceNumber()
	case self.V4 != nil:
		return self.V4.FileReferenceNumber()
	}
	return FileReference{}
}

func (self *USN_RECORD) ParentFileReferenceNumber() FileReference {
	switch {
	case self.V2 != nil:
		return NewFileReference64(self.V2.ParentFileReferenceNumber())
	case self.V3 != nil:
		return self.V3.ParentFileReferenceNumber()
	case self.V4 != nil:
		return self.V4.ParentFileReferenceNumber()
	}
	return FileReference{}
}

func (self *USN_RECORD) Usn() int64 {
	switch {
	case self.V2 != nil:
		return self.V2.Usn()
	case self.V3 != nil:
		return self.V3.Usn()
	case self.V4 != nil:
		return self.V4.Usn()
	}
	return 0
}

// TimeStamp is not carried by v4 records, they return the zero
// time.
func (self *USN_RECORD) TimeStamp() WinFileTime {
	switch {
	case self.V2 != nil:
		return self.V2.TimeStamp()
	case self.V3 != nil:
		return self.V3.TimeStamp()
	}
	return WinFileTime{}
}

func (self *USN_RECORD) Reason() Flags {
	switch {
	case self.V2 != nil:
		return self.V2.Reason()
	case self.V3 != nil:
		return self.V3.Reason()
	case self.V4 != nil:
		return self.V4.Reason()
	}
	return Flags{}
}

func (self *USN_RECORD) SourceInfo() Flags {
	switch {
	case self.V2 != nil:
		return self.V2.SourceInfo()
	case self.V3 != nil:
		return self.V3.SourceInfo()
	case self.V4 != nil:
		return self.V4.SourceInfo()
	}
	return Flags{}
}

func (self *USN_RECORD) SecurityId() uint32 {
	switch {
	case self.V2 != nil:
		return self.V2.SecurityId()
	case self.V3 != nil:
		return self.V3.SecurityId()
	}
	return 0
}

func (self *USN_RECORD) FileAttributes() Flags {
	switch {
	case self.V2 != nil:
		return self.V2.FileAttributes()
	case self.V3 != nil:
		return self.V3.FileAttributes()
	}
	return Flags{}
}

// HasFileName is false for v4 records.
func (self *USN_RECORD) HasFileName() bool {
	return self.V4 == nil
}

func (self *USN_RECORD) Filename() string {
	return self.filename
}

// FilenameTruncated is set when the stored name was longer than the
// name cap or ran past the end of the record.
func (self *USN_RECORD) FilenameTruncated() bool {
	return self.filename_truncated
}

func (self *USN_RECORD) Extents() []USN_RECORD_EXTENT {
	if self.V4 == nil {
		return nil
	}
	return self.V4.Extents()
}

// Copy detaches the record from the page it was decoded from.
func (self *USN_RECORD) Copy() *USN_RECORD {
	raw := append([]byte{}, self.Raw...)
	result := &USN_RECORD{
		Offset:             self.Offset,
		Raw:                raw,
		filename:           self.filename,
		filename_truncated: self.filename_truncated,
	}

	switch {
	case self.V2 != nil:
		result.V2 = NewUSN_RECORD_V2(raw, self.Offset)
	case self.V3 != nil:
		result.V3 = NewUSN_RECORD_V3(raw, self.Offset)
	case self.V4 != nil:
		result.V4 = NewUSN_RECORD_V4(raw, self.Offset)
	}
	return result
}

func (self *USN_RECORD) DebugString() string {
	result := ""
	switch {
	case self.V2 != nil:
		result = self.V2.DebugString()
	case self.V3 != nil:
		result = self.V3.DebugString()
	case self.V4 != nil:
		result = self.V4.DebugString()
		for _, extent := range self.V4.Extents() {
			result += fmt.Sprintf("  Extent: %#x-%#x\n",
				extent.Offset, extent.Offset+extent.Length)
		}
		return result
	}
	result += fmt.Sprintf("  Filename: %v\n", self.Filename())
	return result
}

func (self *USN_RECORD) decodeFilename(
	name_offset, name_length uint16, max_name_bytes int) error {
	if max_name_bytes <= 0 {
		max_name_bytes = MaxFileNameBytes
	}

	start := int(name_offset)
	if start > len(self.Raw) {
		return malformed("USN_RECORD", self.Offset,
			"file name offset %#x outside record of length %#x",
			start, len(self.Raw))
	}

	length := int(name_length)
	if length > max_name_bytes {
		length = max_name_bytes
		self.filename_truncated = true
	}

	if length > len(self.Raw)-start {
		length = len(self.Raw) - start
		self.filename_truncated = true
	}

	self.filename = ParseUTF16String(self.Raw[start : start+length])
	return nil
}

// DecodeUSNRecord decodes the record at the start of data. offset is
// only used for reporting.
func DecodeUSNRecord(data []byte, offset int64, max_name_bytes int) (
	*USN_RECORD, error) {
	if len(data) < USN_RECORD_COMMON_HEADER_SIZE {
		return nil, malformed("USN_RECORD", offset,
			"only %v bytes left for the record header", len(data))
	}

	length := int(getUint32(data, 0))
	if length < USN_RECORD_COMMON_HEADER_SIZE {
		return nil, malformed("USN_RECORD", offset,
			"record length %#x is too small", length)
	}

	if length > len(data) {
		return nil, malformed("USN_RECORD", offset,
			"record length %#x exceeds the %#x bytes left in the page",
			length, len(data))
	}

	raw := data[:length:length]
	result := &USN_RECORD{Offset: offset, Raw: raw}

	major := result.MajorVersion()
	switch major {
	case 2:
		if length < USN_RECORD_V2_SIZE {
			return nil, malformed("USN_RECORD", offset,
				"record length %#x too short for version 2", length)
		}
		result.V2 = NewUSN_RECORD_V2(raw, offset)
		return result, result.decodeFilename(
			result.V2.FileNameOffset(), result.V2.FileNameLength(),
			max_name_bytes)

	case 3:
		if length < USN_RECORD_V3_SIZE {
			return nil, malformed("USN_RECORD", offset,
				"record length %#x too short for version 3", length)
		}
		result.V3 = NewUSN_RECORD_V3(raw, offset)
		return result, result.decodeFilename(
			result.V3.FileNameOffset(), result.V3.FileNameLength(),
			max_name_bytes)

	case 4:
		if length < USN_RECORD_V4_SIZE {
			return nil, malformed("USN_RECORD", offset,
				"record length %#x too short for version 4", length)
		}
		result.V4 = NewUSN_RECORD_V4(raw, offset)

		count := int(result.V4.NumberOfExtents())
		size := int(result.V4.ExtentSize())
		if count > 0 && (size < USN_RECORD_EXTENT_SIZE ||
			USN_RECORD_V4_SIZE+count*size > length) {
			return nil, malformed("USN_RECORD", offset,
				"%v extents of size %v do not fit in record length %#x",
				count, size, length)
		}
		return result, nil
	}

	return nil, malformed("USN_RECORD", offset,
		"unsupported major version %v", major)
}

// WalkUSNRecords visits every record in the payload of a journal
// page, in order. The visitor may return ErrStopWalk to end the walk
// early. A malformed record ends the walk with an error after all
// the records before it were visited.
func WalkUSNRecords(payload []byte, visitor func(record *USN_RECORD) error) error {
	return walkUSNRecords(payload, MaxFileNameBytes, visitor)
}

func walkUSNRecords(payload []byte, max_name_bytes int,
	visitor func(record *USN_RECORD) error) error {
	for offset := 0; offset < len(payload); {
		record, err := DecodeUSNRecord(
			payload[offset:], int64(offset), max_name_bytes)
		if err != nil {
			DebugPrint("WalkUSNRecords: %v", err)
			return err
		}

		STATS.Inc_USN_RECORD()
		err = visitor(record)
		if err != nil {
			if errors.Is(err, ErrStopWalk) {
				return nil
			}
			return err
		}

		offset += int(record.RecordLength())
	}

	return nil
}

// CollectUSNRecords decodes a page payload into a list of records.
// The records are copies and outlive the payload.
func CollectUSNRecords(payload []byte) ([]*USN_RECORD, error) {
	result := []*USN_RECORD{}
	err := WalkUSNRecords(payload, func(record *USN_RECORD) error {
		result = append(result, record.Copy())
		return nil
	})
	return result, err
}
