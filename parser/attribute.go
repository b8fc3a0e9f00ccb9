package parser

import (
	"fmt"

	"github.com/pkg/errors"
)

func (self *NTFS_ATTRIBUTE) IsResident() bool {
	return self.Raw[8] == 0
}

// Resident returns the resident sub-header. It fails if the attribute
// is non-resident or too short to hold the sub-header.
func (self *NTFS_ATTRIBUTE) Resident() (*RESIDENT_ATTRIBUTE, error) {
	if !self.IsResident() {
		return nil, errors.Wrapf(ErrInvalidParameter,
			"%v attribute is not resident", self.Type().Name)
	}

	if len(self.Raw) < RESIDENT_ATTRIBUTE_SIZE {
		return nil, malformed("NTFS_ATTRIBUTE", self.Offset,
			"length %#x too short for a resident header", len(self.Raw))
	}

	return &RESIDENT_ATTRIBUTE{b: self.Raw, Offset: self.Offset}, nil
}

// NonResident returns the non-resident sub-header. The run list is
// not decoded.
func (self *NTFS_ATTRIBUTE) NonResident() (*NON_RESIDENT_ATTRIBUTE, error) {
	if self.IsResident() {
		return nil, errors.Wrapf(ErrInvalidParameter,
			"%v attribute is resident", self.Type().Name)
	}

	result := &NON_RESIDENT_ATTRIBUTE{
		b:          self.Raw,
		Offset:     self.Offset,
		compressed: self.Flags().IsSet("COMPRESSED"),
	}

	if len(self.Raw) < result.Size() {
		return nil, malformed("NTFS_ATTRIBUTE", self.Offset,
			"length %#x too short for a non-resident header", len(self.Raw))
	}

	return result, nil
}

// Name decodes the attribute name (e.g. $J for the journal's data
// stream). Unnamed attributes return "".
func (self *NTFS_ATTRIBUTE) Name() string {
	length := int(self.Name_length()) * 2
	start := int(self.Name_offset())
	if length == 0 || start >= len(self.Raw) {
		return ""
	}

	if start+length > len(self.Raw) {
		length = len(self.Raw) - start
	}

	return ParseUTF16String(self.Raw[start : start+length])
}

// Value returns the resident content. The slice borrows the record.
func (self *NTFS_ATTRIBUTE) Value() ([]byte, error) {
	resident, err := self.Resident()
	if err != nil {
		return nil, err
	}

	start := int(resident.Content_offset())
	end := start + int(resident.Content_size())
	if start < RESIDENT_ATTRIBUTE_SIZE || end > len(self.Raw) {
		return nil, malformed("NTFS_ATTRIBUTE", self.Offset,
			"resident value %#x-%#x outside attribute of length %#x",
			start, end, len(self.Raw))
	}

	return self.Raw[start:end:end], nil
}

func (self *NTFS_ATTRIBUTE) DataSize() int64 {
	if self.IsResident() {
		resident, err := self.Resident()
		if err != nil {
			return 0
		}
		return int64(resident.Content_size())
	}

	non_resident, err := self.NonResident()
	if err != nil {
		return 0
	}
	return int64(non_resident.Actual_size())
}

func (self *NTFS_ATTRIBUTE) DebugString() string {
	result := fmt.Sprintf("struct NTFS_ATTRIBUTE @ %#x:\n", self.Offset)
	result += fmt.Sprintf("  Type: %v\n", self.Type().DebugString())
	result += fmt.Sprintf("  Length: %#0x\n", self.Length())
	result += fmt.Sprintf("  Non_resident: %v\n", self.Non_resident().DebugString())
	result += fmt.Sprintf("  Name_length: %#0x\n", self.Name_length())
	result += fmt.Sprintf("  Name_offset: %#0x\n", self.Name_offset())
	result += fmt.Sprintf("  Flags: %v\n", self.Flags().DebugString())
	result += fmt.Sprintf("  Attribute_id: %#0x\n", self.Attribute_id())

	if self.IsResident() {
		resident, err := self.Resident()
		if err == nil {
			result += DebugString(resident, "  ") + "\n"
		}
	} else {
		non_resident, err := self.NonResident()
		if err == nil {
			result += DebugString(non_resident, "  ") + "\n"
		}
	}
	return result
}

const (
	// Version 1.2 layout. NTFS 3.x adds owner, security, quota and
	// usn fields.
	STANDARD_INFORMATION_SIZE    = 48
	STANDARD_INFORMATION_V3_SIZE = 72

	FILE_NAME_SIZE = 66
)

type STANDARD_INFORMATION struct {
	b []byte
}

func (self *STANDARD_INFORMATION) Create_time() WinFileTime {
	return NewWinFileTime(getInt64(self.b, 0))
}

func (self *STANDARD_INFORMATION) File_altered_time() WinFileTime {
	return NewWinFileTime(getInt64(self.b, 8))
}

func (self *STANDARD_INFORMATION) Mft_altered_time() WinFileTime {
	return NewWinFileTime(getInt64(self.b, 16))
}

func (self *STANDARD_INFORMATION) File_accessed_time() WinFileTime {
	return NewWinFileTime(getInt64(self.b, 24))
}

func (self *STANDARD_INFORMATION) Flags() Flags {
	return FileAttributeFlags(getUint32(self.b, 32))
}

// The remaining fields are 0 for the short (v1.2) layout.
func (self *STANDARD_INFORMATION) Owner_id() uint32 {
	return getUint32(self.b, 48)
}

func (self *STANDARD_INFORMATION) Sid_id() uint32 {
	return getUint32(self.b, 52)
}

func (self *STANDARD_INFORMATION) Quota_charged() uint64 {
	return getUint64(self.b, 56)
}

func (self *STANDARD_INFORMATION) Usn() int64 {
	return getInt64(self.b, 64)
}

func (self *STANDARD_INFORMATION) DebugString() string {
	result := "struct STANDARD_INFORMATION:\n"
	result += fmt.Sprintf("  Create_time: %v\n", self.Create_time().DebugString())
	result += fmt.Sprintf("  File_altered_time: %v\n", self.File_altered_time().DebugString())
	result += fmt.Sprintf("  Mft_altered_time: %v\n", self.Mft_altered_time().DebugString())
	result += fmt.Sprintf("  File_accessed_time: %v\n", self.File_accessed_time().DebugString())
	result += fmt.Sprintf("  Flags: %v\n", self.Flags().DebugString())
	result += fmt.Sprintf("  Sid_id: %#0x\n", self.Sid_id())
	result += fmt.Sprintf("  Usn: %#0x\n", self.Usn())
	return result
}

// ParseStandardInformation decodes a resident $STANDARD_INFORMATION
// attribute. The result is a copy and outlives the record.
func ParseStandardInformation(attr *NTFS_ATTRIBUTE) (*STANDARD_INFORMATION, error) {
	if attr.Type().Value != ATTR_TYPE_STANDARD_INFORMATION {
		return nil, errors.Wrapf(ErrInvalidParameter,
			"expected $STANDARD_INFORMATION, got %v", attr.Type().Name)
	}

	value, err := attr.Value()
	if err != nil {
		return nil, err
	}

	if len(value) < STANDARD_INFORMATION_SIZE {
		return nil, malformed("STANDARD_INFORMATION", attr.Offset,
			"value too short (%#x bytes)", len(value))
	}

	return &STANDARD_INFORMATION{b: append([]byte{}, value...)}, nil
}

type FILE_NAME struct {
	b []byte
}

func (self *FILE_NAME) ParentReference() FileReference {
	return NewFileReference64(getUint64(self.b, 0))
}

func (self *FILE_NAME) MftReference() uint64 {
	return self.ParentReference().MFTId()
}

func (self *FILE_NAME) Seq_num() uint16 {
	return self.ParentReference().Sequence()
}

func (self *FILE_NAME) Created() WinFileTime {
	return NewWinFileTime(getInt64(self.b, 8))
}

func (self *FILE_NAME) File_modified() WinFileTime {
	return NewWinFileTime(getInt64(self.b, 16))
}

func (self *FILE_NAME) Mft_modified() WinFileTime {
	return NewWinFileTime(getInt64(self.b, 24))
}

func (self *FILE_NAME) File_accessed() WinFileTime {
	return NewWinFileTime(getInt64(self.b, 32))
}

func (self *FILE_NAME) Allocated_size() uint64 {
	return getUint64(self.b, 40)
}

func (self *FILE_NAME) FilenameSize() uint64 {
	return getUint64(self.b, 48)
}

func (self *FILE_NAME) Flags() Flags {
	return FileAttributeFlags(getUint32(self.b, 56))
}

func (self *FILE_NAME) Reparse_value() uint32 {
	return getUint32(self.b, 60)
}

func (self *FILE_NAME) NameLength() uint8 {
	return self.b[64]
}

func (self *FILE_NAME) NameType() Enumeration {
	value := self.b[65]
	name := "Unknown"
	switch value {
	case 0:
		name = "POSIX"
	case 1:
		name = "Win32"
	case 2:
		name = "DOS"
	case 3:
		name = "DOS+Win32"
	}
	return Enumeration{Value: uint64(value), Name: name}
}

func (self *FILE_NAME) Name() string {
	end := FILE_NAME_SIZE + int(self.NameLength())*2
	if end > len(self.b) {
		end = len(self.b)
	}
	return ParseUTF16String(self.b[FILE_NAME_SIZE:end])
}

func (self *FILE_NAME) DebugString() string {
	result := "struct FILE_NAME:\n"
	result += fmt.Sprintf("  ParentReference: %v\n", self.ParentReference())
	result += fmt.Sprintf("  Created: %v\n", self.Created().DebugString())
	result += fmt.Sprintf("  File_modified: %v\n", self.File_modified().DebugString())
	result += fmt.Sprintf("  Mft_modified: %v\n", self.Mft_modified().DebugString())
	result += fmt.Sprintf("  File_accessed: %v\n", self.File_accessed().DebugString())
	result += fmt.Sprintf("  FilenameSize: %#0x\n", self.FilenameSize())
	result += fmt.Sprintf("  NameType: %v\n", self.NameType().DebugString())
	result += fmt.Sprintf("  Name: %v\n", self.Name())
	return result
}

// ParseFileName decodes a resident $FILE_NAME attribute. The result
// is a copy and outlives the record.
func ParseFileName(attr *NTFS_ATTRIBUTE) (*FILE_NAME, error) {
	if attr.Type().Value != ATTR_TYPE_FILE_NAME {
		return nil, errors.Wrapf(ErrInvalidParameter,
			"expected $FILE_NAME, got %v", attr.Type().Name)
	}

	value, err := attr.Value()
	if err != nil {
		return nil, err
	}

	if len(value) < FILE_NAME_SIZE ||
		len(value) < FILE_NAME_SIZE+int(value[64])*2 {
		return nil, malformed("FILE_NAME", attr.Offset,
			"value too short (%#x bytes)", len(value))
	}

	return &FILE_NAME{b: append([]byte{}, value...)}, nil
}
