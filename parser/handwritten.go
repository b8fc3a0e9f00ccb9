package parser

import (
	"fmt"
)

// These are hand written parsers for the fixed layouts of the change
// journal and the MFT. Each struct is a view over a borrowed slice
// which the caller already checked is at least Size() bytes long.

const (
	// RecordLength, MajorVersion and MinorVersion are common to all
	// USN record versions.
	USN_RECORD_COMMON_HEADER_SIZE = 8

	USN_RECORD_V2_SIZE = 60
	USN_RECORD_V3_SIZE = 76

	// Fixed part of a v4 record. The extents follow.
	USN_RECORD_V4_SIZE     = 64
	USN_RECORD_EXTENT_SIZE = 16

	MFT_FILE_RECORD_HEADER_SIZE = 42
	NTFS_ATTRIBUTE_HEADER_SIZE  = 16

	RESIDENT_ATTRIBUTE_SIZE     = 24
	NON_RESIDENT_ATTRIBUTE_SIZE = 64

	// Only present when the attribute is compressed.
	NON_RESIDENT_COMPRESSED_SIZE = 72
)

// A FileReference identifies an MFT entry. Version 2 records carry
// an 8 byte reference (48 bit entry id and 16 bit sequence), later
// versions carry an opaque 16 byte FILE_ID_128.
type FileReference struct {
	Low  uint64
	High uint64
	Wide bool
}

func NewFileReference64(value uint64) FileReference {
	return FileReference{Low: value}
}

func NewFileReference128(data []byte) FileReference {
	return FileReference{
		Low:  getUint64(data, 0),
		High: getUint64(data, 8),
		Wide: true,
	}
}

func (self FileReference) Uint64() uint64 {
	return self.Low
}

// MFTId is only meaningful for references which follow the 64 bit
// layout. NTFS stores 128 bit ids with the upper half zeroed.
func (self FileReference) MFTId() uint64 {
	return self.Low & 0xFFFFFFFFFFFF
}

func (self FileReference) Sequence() uint16 {
	return uint16(self.Low >> 48)
}

func (self FileReference) String() string {
	if self.Wide {
		return fmt.Sprintf("%016x%016x", self.High, self.Low)
	}
	return fmt.Sprintf("%#x", self.Low)
}

type USN_RECORD_V2 struct {
	b      []byte
	Offset int64
}

func NewUSN_RECORD_V2(b []byte, offset int64) *USN_RECORD_V2 {
	return &USN_RECORD_V2{b: b, Offset: offset}
}

func (self *USN_RECORD_V2) Size() int {
	return USN_RECORD_V2_SIZE
}

func (self *USN_RECORD_V2) RecordLength() uint32 {
	return getUint32(self.b, 0)
}

func (self *USN_RECORD_V2) MajorVersion() uint16 {
	return getUint16(self.b, 4)
}

func (self *USN_RECORD_V2) MinorVersion() uint16 {
	return getUint16(self.b, 6)
}

func (self *USN_RECORD_V2) FileReferenceNumber() uint64 {
	return getUint64(self.b, 8)
}

func (self *USN_RECORD_V2) FileReferenceNumberID() uint64 {
	return self.FileReferenceNumber() & 0xFFFFFFFFFFFF
}

func (self *USN_RECORD_V2) FileReferenceNumberSequence() uint64 {
	return self.FileReferenceNumber() >> 48
}

func (self *USN_RECORD_V2) ParentFileReferenceNumber() uint64 {
	return getUint64(self.b, 16)
}

func (self *USN_RECORD_V2) ParentFileReferenceNumberID() uint64 {
	return self.ParentFileReferenceNumber() & 0xFFFFFFFFFFFF
}

func (self *USN_RECORD_V2) ParentFileReferenceNumberSequence() uint64 {
	return self.ParentFileReferenceNumber() >> 48
}

func (self *USN_RECORD_V2) Usn() int64 {
	return getInt64(self.b, 24)
}

func (self *USN_RECORD_V2) TimeStamp() WinFileTime {
	return NewWinFileTime(getInt64(self.b, 32))
}

func (self *USN_RECORD_V2) Reason() Flags {
	return ReasonFlags(getUint32(self.b, 40))
}

func (self *USN_RECORD_V2) SourceInfo() Flags {
	return SourceInfoFlags(getUint32(self.b, 44))
}

func (self *USN_RECORD_V2) SecurityId() uint32 {
	return getUint32(self.b, 48)
}

func (self *USN_RECORD_V2) FileAttributes() Flags {
	return FileAttributeFlags(getUint32(self.b, 52))
}

func (self *USN_RECORD_V2) FileNameLength() uint16 {
	return getUint16(self.b, 56)
}

func (self *USN_RECORD_V2) FileNameOffset() uint16 {
	return getUint16(self.b, 58)
}

func (self *USN_RECORD_V2) DebugString() string {
	result := fmt.Sprintf("struct USN_RECORD_V2 @ %#x:\n", self.Offset)
	result += fmt.Sprintf("  RecordLength: %#0x\n", self.RecordLength())
	result += fmt.Sprintf("  MajorVersion: %#0x\n", self.MajorVersion())
	result += fmt.Sprintf("  MinorVersion: %#0x\n", self.MinorVersion())
	result += fmt.Sprintf("  FileReferenceNumber: %#0x\n", self.FileReferenceNumber())
	result += fmt.Sprintf("  ParentFileReferenceNumber: %#0x\n", self.ParentFileReferenceNumber())
	result += fmt.Sprintf("  Usn: %#0x\n", self.Usn())
	result += fmt.Sprintf("  TimeStamp: %v\n", self.TimeStamp().DebugString())
	result += fmt.Sprintf("  Reason: %v\n", self.Reason().DebugString())
	result += fmt.Sprintf("  SourceInfo: %v\n", self.SourceInfo().DebugString())
	result += fmt.Sprintf("  SecurityId: %#0x\n", self.SecurityId())
	result += fmt.Sprintf("  FileAttributes: %v\n", self.FileAttributes().DebugString())
	result += fmt.Sprintf("  FileNameLength: %#0x\n", self.FileNameLength())
	result += fmt.Sprintf("  FileNameOffset: %#0x\n", self.FileNameOffset())
	return result
}

type USN_RECORD_V3 struct {
	b      []byte
	Offset int64
}

func NewUSN_RECORD_V3(b []byte, offset int64) *USN_RECORD_V3 {
	return &USN_RECORD_V3{b: b, Offset: offset}
}

func (self *USN_RECORD_V3) Size() int {
	return USN_RECORD_V3_SIZE
}

func (self *USN_RECORD_V3) RecordLength() uint32 {
	return getUint32(self.b, 0)
}

func (self *USN_RECORD_V3) MajorVersion() uint16 {
	return getUint16(self.b, 4)
}

func (self *USN_RECORD_V3) MinorVersion() uint16 {
	return getUint16(self.b, 6)
}

func (self *USN_RECORD_V3) FileReferenceNumber() FileReference {
	return NewFileReference128(self.b[8:24])
}

func (self *USN_RECORD_V3) ParentFileReferenceNumber() FileReference {
	return NewFileReference128(self.b[24:40])
}

func (self *USN_RECORD_V3) Usn() int64 {
	return getInt64(self.b, 40)
}

func (self *USN_RECORD_V3) TimeStamp() WinFileTime {
	return NewWinFileTime(getInt64(self.b, 48))
}

func (self *USN_RECORD_V3) Reason() Flags {
	return ReasonFlags(getUint32(self.b, 56))
}

func (self *USN_RECORD_V3) SourceInfo() Flags {
	return SourceInfoFlags(getUint32(self.b, 60))
}

func (self *USN_RECORD_V3) SecurityId() uint32 {
	return getUint32(self.b, 64)
}

func (self *USN_RECORD_V3) FileAttributes() Flags {
	return FileAttributeFlags(getUint32(self.b, 68))
}

func (self *USN_RECORD_V3) FileNameLength() uint16 {
	return getUint16(self.b, 72)
}

func (self *USN_RECORD_V3) FileNameOffset() uint16 {
	return getUint16(self.b, 74)
}

func (self *USN_RECORD_V3) DebugString() string {
	result := fmt.Sprintf("struct USN_RECORD_V3 @ %#x:\n", self.Offset)
	result += fmt.Sprintf("  RecordLength: %#0x\n", self.RecordLength())
	result += fmt.Sprintf("  MajorVersion: %#0x\n", self.MajorVersion())
	result += fmt.Sprintf("  MinorVersion: %#0x\n", self.MinorVersion())
	result += fmt.Sprintf("  FileReferenceNumber: %v\n", self.FileReferenceNumber())
	result += fmt.Sprintf("  ParentFileReferenceNumber: %v\n", self.ParentFileReferenceNumber())
	result += fmt.Sprintf("  Usn: %#0x\n", self.Usn())
	result += fmt.Sprintf("  TimeStamp: %v\n", self.TimeStamp().DebugString())
	result += fmt.Sprintf("  Reason: %v\n", self.Reason().DebugString())
	result += fmt.Sprintf("  SourceInfo: %v\n", self.SourceInfo().DebugString())
	result += fmt.Sprintf("  SecurityId: %#0x\n", self.SecurityId())
	result += fmt.Sprintf("  FileAttributes: %v\n", self.FileAttributes().DebugString())
	result += fmt.Sprintf("  FileNameLength: %#0x\n", self.FileNameLength())
	result += fmt.Sprintf("  FileNameOffset: %#0x\n", self.FileNameOffset())
	return result
}

// A range of a file modified by a write, reported by v4 records.
type USN_RECORD_EXTENT struct {
	Offset int64
	Length int64
}

type USN_RECORD_V4 struct {
	b      []byte
	Offset int64
}

func NewUSN_RECORD_V4(b []byte, offset int64) *USN_RECORD_V4 {
	return &USN_RECORD_V4{b: b, Offset: offset}
}

func (self *USN_RECORD_V4) Size() int {
	return USN_RECORD_V4_SIZE
}

func (self *USN_RECORD_V4) RecordLength() uint32 {
	return getUint32(self.b, 0)
}

func (self *USN_RECORD_V4) MajorVersion() uint16 {
	return getUint16(self.b, 4)
}

func (self *USN_RECORD_V4) MinorVersion() uint16 {
	return getUint16(self.b, 6)
}

func (self *USN_RECORD_V4) FileReferenceNumber() FileReference {
	return NewFileReference128(self.b[8:24])
}

func (self *USN_RECORD_V4) ParentFileReferenceNumber() FileReference {
	return NewFileReference128(self.b[24:40])
}

func (self *USN_RECORD_V4) Usn() int64 {
	return getInt64(self.b, 40)
}

func (self *USN_RECORD_V4) Reason() Flags {
	return ReasonFlags(getUint32(self.b, 48))
}

func (self *USN_RECORD_V4) SourceInfo() Flags {
	return SourceInfoFlags(getUint32(self.b, 52))
}

func (self *USN_RECORD_V4) RemainingExtents() uint32 {
	return getUint32(self.b, 56)
}

func (self *USN_RECORD_V4) NumberOfExtents() uint16 {
	return getUint16(self.b, 60)
}

func (self *USN_RECORD_V4) ExtentSize() uint16 {
	return getUint16(self.b, 62)
}

// Extents returns the extents which fit inside the record.
func (self *USN_RECORD_V4) Extents() []USN_RECORD_EXTENT {
	count := int(self.NumberOfExtents())
	size := int(self.ExtentSize())
	if count == 0 || size < USN_RECORD_EXTENT_SIZE {
		return nil
	}

	result := make([]USN_RECORD_EXTENT, 0, count)
	for i := 0; i < count; i++ {
		offset := USN_RECORD_V4_SIZE + i*size
		if offset+USN_RECORD_EXTENT_SIZE > len(self.b) {
			break
		}
		result = append(result, USN_RECORD_EXTENT{
			Offset: getInt64(self.b, offset),
			Length: getInt64(self.b, offset+8),
		})
	}
	return result
}

func (self *USN_RECORD_V4) DebugString() string {
	result := fmt.Sprintf("struct USN_RECORD_V4 @ %#x:\n", self.Offset)
	result += fmt.Sprintf("  RecordLength: %#0x\n", self.RecordLength())
	result += fmt.Sprintf("  MajorVersion: %#0x\n", self.MajorVersion())
	result += fmt.Sprintf("  MinorVersion: %#0x\n", self.MinorVersion())
	result += fmt.Sprintf("  FileReferenceNumber: %v\n", self.FileReferenceNumber())
	result += fmt.Sprintf("  ParentFileReferenceNumber: %v\n", self.ParentFileReferenceNumber())
	result += fmt.Sprintf("  Usn: %#0x\n", self.Usn())
	result += fmt.Sprintf("  Reason: %v\n", self.Reason().DebugString())
	result += fmt.Sprintf("  SourceInfo: %v\n", self.SourceInfo().DebugString())
	result += fmt.Sprintf("  RemainingExtents: %#0x\n", self.RemainingExtents())
	result += fmt.Sprintf("  NumberOfExtents: %#0x\n", self.NumberOfExtents())
	result += fmt.Sprintf("  ExtentSize: %#0x\n", self.ExtentSize())
	return result
}

// MFT_ENTRY is the FILE record header at the start of every MFT
// record.
type MFT_ENTRY struct {
	b      []byte
	Offset int64
}

func NewMFT_ENTRY(b []byte, offset int64) *MFT_ENTRY {
	return &MFT_ENTRY{b: b, Offset: offset}
}

func (self *MFT_ENTRY) Size() int {
	return MFT_FILE_RECORD_HEADER_SIZE
}

func (self *MFT_ENTRY) Magic() string {
	return string(self.b[0:4])
}

func (self *MFT_ENTRY) Fixup_offset() uint16 {
	return getUint16(self.b, 4)
}

func (self *MFT_ENTRY) Fixup_count() uint16 {
	return getUint16(self.b, 6)
}

func (self *MFT_ENTRY) Logfile_sequence_number() uint64 {
	return getUint64(self.b, 8)
}

func (self *MFT_ENTRY) Sequence_value() uint16 {
	return getUint16(self.b, 16)
}

func (self *MFT_ENTRY) Link_count() uint16 {
	return getUint16(self.b, 18)
}

func (self *MFT_ENTRY) Attribute_offset() uint16 {
	return getUint16(self.b, 20)
}

func (self *MFT_ENTRY) Flags() Flags {
	return FileRecordFlags(getUint16(self.b, 22))
}

// Number of bytes of the record in use. This bounds the attribute
// walk.
func (self *MFT_ENTRY) Mft_entry_size() uint32 {
	return getUint32(self.b, 24)
}

func (self *MFT_ENTRY) Mft_entry_allocated() uint32 {
	return getUint32(self.b, 28)
}

func (self *MFT_ENTRY) Base_record_reference() uint64 {
	return getUint64(self.b, 32)
}

func (self *MFT_ENTRY) Next_attribute_id() uint16 {
	return getUint16(self.b, 40)
}

// Only present in records written by NTFS 3.1 and later. Returns 0
// for the short header.
func (self *MFT_ENTRY) Record_number() uint32 {
	if self.Attribute_offset() < 48 {
		return 0
	}
	return getUint32(self.b, 44)
}

func (self *MFT_ENTRY) DebugString() string {
	result := fmt.Sprintf("struct MFT_ENTRY @ %#x:\n", self.Offset)
	result += fmt.Sprintf("  Magic: %q\n", self.Magic())
	result += fmt.Sprintf("  Fixup_offset: %#0x\n", self.Fixup_offset())
	result += fmt.Sprintf("  Fixup_count: %#0x\n", self.Fixup_count())
	result += fmt.Sprintf("  Logfile_sequence_number: %#0x\n", self.Logfile_sequence_number())
	result += fmt.Sprintf("  Sequence_value: %#0x\n", self.Sequence_value())
	result += fmt.Sprintf("  Link_count: %#0x\n", self.Link_count())
	result += fmt.Sprintf("  Attribute_offset: %#0x\n", self.Attribute_offset())
	result += fmt.Sprintf("  Flags: %v\n", self.Flags().DebugString())
	result += fmt.Sprintf("  Mft_entry_size: %#0x\n", self.Mft_entry_size())
	result += fmt.Sprintf("  Mft_entry_allocated: %#0x\n", self.Mft_entry_allocated())
	result += fmt.Sprintf("  Base_record_reference: %#0x\n", self.Base_record_reference())
	result += fmt.Sprintf("  Next_attribute_id: %#0x\n", self.Next_attribute_id())
	result += fmt.Sprintf("  Record_number: %#0x\n", self.Record_number())
	return result
}

// NTFS_ATTRIBUTE is the header common to resident and non-resident
// attributes. Raw borrows the whole attribute from the MFT record.
type NTFS_ATTRIBUTE struct {
	Raw    []byte
	Offset int64
}

func NewNTFS_ATTRIBUTE(raw []byte, offset int64) *NTFS_ATTRIBUTE {
	return &NTFS_ATTRIBUTE{Raw: raw, Offset: offset}
}

func (self *NTFS_ATTRIBUTE) Size() int {
	return NTFS_ATTRIBUTE_HEADER_SIZE
}

func (self *NTFS_ATTRIBUTE) Type() Enumeration {
	value := getUint32(self.Raw, 0)
	return Enumeration{Value: uint64(value), Name: AttributeTypeName(value)}
}

func (self *NTFS_ATTRIBUTE) Length() uint32 {
	return getUint32(self.Raw, 4)
}

func (self *NTFS_ATTRIBUTE) Non_resident() Enumeration {
	value := self.Raw[8]
	name := "Unknown"
	switch value {
	case 0:
		name = "RESIDENT"
	case 1:
		name = "NON-RESIDENT"
	}
	return Enumeration{Value: uint64(value), Name: name}
}

func (self *NTFS_ATTRIBUTE) Name_length() uint8 {
	return self.Raw[9]
}

func (self *NTFS_ATTRIBUTE) Name_offset() uint16 {
	return getUint16(self.Raw, 10)
}

func (self *NTFS_ATTRIBUTE) Flags() Flags {
	return AttributeFlags(getUint16(self.Raw, 12))
}

func (self *NTFS_ATTRIBUTE) Attribute_id() uint16 {
	return getUint16(self.Raw, 14)
}

type RESIDENT_ATTRIBUTE struct {
	b      []byte
	Offset int64
}

func (self *RESIDENT_ATTRIBUTE) Size() int {
	return RESIDENT_ATTRIBUTE_SIZE
}

func (self *RESIDENT_ATTRIBUTE) Content_size() uint32 {
	return getUint32(self.b, 16)
}

func (self *RESIDENT_ATTRIBUTE) Content_offset() uint16 {
	return getUint16(self.b, 20)
}

func (self *RESIDENT_ATTRIBUTE) Indexed_flag() uint8 {
	return self.b[22]
}

func (self *RESIDENT_ATTRIBUTE) DebugString() string {
	result := fmt.Sprintf("struct RESIDENT_ATTRIBUTE @ %#x:\n", self.Offset)
	result += fmt.Sprintf("  Content_size: %#0x\n", self.Content_size())
	result += fmt.Sprintf("  Content_offset: %#0x\n", self.Content_offset())
	result += fmt.Sprintf("  Indexed_flag: %#0x\n", self.Indexed_flag())
	return result
}

type NON_RESIDENT_ATTRIBUTE struct {
	b          []byte
	Offset     int64
	compressed bool
}

func (self *NON_RESIDENT_ATTRIBUTE) Size() int {
	if self.compressed {
		return NON_RESIDENT_COMPRESSED_SIZE
	}
	return NON_RESIDENT_ATTRIBUTE_SIZE
}

func (self *NON_RESIDENT_ATTRIBUTE) Runlist_vcn_start() uint64 {
	return getUint64(self.b, 16)
}

func (self *NON_RESIDENT_ATTRIBUTE) Runlist_vcn_end() uint64 {
	return getUint64(self.b, 24)
}

func (self *NON_RESIDENT_ATTRIBUTE) Runlist_offset() uint16 {
	return getUint16(self.b, 32)
}

func (self *NON_RESIDENT_ATTRIBUTE) Compression_unit_size() uint16 {
	return getUint16(self.b, 34)
}

func (self *NON_RESIDENT_ATTRIBUTE) Allocated_size() uint64 {
	return getUint64(self.b, 40)
}

func (self *NON_RESIDENT_ATTRIBUTE) Actual_size() uint64 {
	return getUint64(self.b, 48)
}

func (self *NON_RESIDENT_ATTRIBUTE) Initialized_size() uint64 {
	return getUint64(self.b, 56)
}

// Only valid for compressed attributes, otherwise 0.
func (self *NON_RESIDENT_ATTRIBUTE) Compressed_size() uint64 {
	if !self.compressed {
		return 0
	}
	return getUint64(self.b, 64)
}

func (self *NON_RESIDENT_ATTRIBUTE) DebugString() string {
	result := fmt.Sprintf("struct NON_RESIDENT_ATTRIBUTE @ %#x:\n", self.Offset)
	result += fmt.Sprintf("  Runlist_vcn_start: %#0x\n", self.Runlist_vcn_start())
	result += fmt.Sprintf("  Runlist_vcn_end: %#0x\n", self.Runlist_vcn_end())
	result += fmt.Sprintf("  Runlist_offset: %#0x\n", self.Runlist_offset())
	result += fmt.Sprintf("  Compression_unit_size: %#0x\n", self.Compression_unit_size())
	result += fmt.Sprintf("  Allocated_size: %#0x\n", self.Allocated_size())
	result += fmt.Sprintf("  Actual_size: %#0x\n", self.Actual_size())
	result += fmt.Sprintf("  Initialized_size: %#0x\n", self.Initialized_size())
	if self.compressed {
		result += fmt.Sprintf("  Compressed_size: %#0x\n", self.Compressed_size())
	}
	return result
}
