package parser

import (
	"fmt"
	"sort"
	"strings"
)

// An Enumeration is an integer with a symbolic name.
type Enumeration struct {
	Value uint64
	Name  string
}

func (self Enumeration) DebugString() string {
	return fmt.Sprintf("%v (%v)", self.Name, self.Value)
}

// Flags is a bit mask with the names of the set bits.
type Flags struct {
	Value uint64
	Names map[string]bool
}

func (self Flags) IsSet(flag string) bool {
	return self.Names[flag]
}

// Values returns the sorted names of the set flags.
func (self Flags) Values() []string {
	result := make([]string, 0, len(self.Names))
	for k := range self.Names {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func (self Flags) DebugString() string {
	return fmt.Sprintf("%#x (%v)", self.Value, strings.Join(self.Values(), ","))
}

type bitName struct {
	bit  uint64
	name string
}

func makeFlags(value uint64, names []bitName) Flags {
	result := Flags{Value: value, Names: make(map[string]bool)}
	for _, n := range names {
		if value&n.bit != 0 {
			result.Names[n.name] = true
		}
	}
	return result
}

const (
	USN_REASON_ALL = 0xFFFFFFFF
)

var reason_names = []bitName{
	{0x00000001, "DATA_OVERWRITE"},
	{0x00000002, "DATA_EXTEND"},
	{0x00000004, "DATA_TRUNCATION"},
	{0x00000010, "NAMED_DATA_OVERWRITE"},
	{0x00000020, "NAMED_DATA_EXTEND"},
	{0x00000040, "NAMED_DATA_TRUNCATION"},
	{0x00000100, "FILE_CREATE"},
	{0x00000200, "FILE_DELETE"},
	{0x00000400, "EA_CHANGE"},
	{0x00000800, "SECURITY_CHANGE"},
	{0x00001000, "RENAME_OLD_NAME"},
	{0x00002000, "RENAME_NEW_NAME"},
	{0x00004000, "INDEXABLE_CHANGE"},
	{0x00008000, "BASIC_INFO_CHANGE"},
	{0x00010000, "HARD_LINK_CHANGE"},
	{0x00020000, "COMPRESSION_CHANGE"},
	{0x00040000, "ENCRYPTION_CHANGE"},
	{0x00080000, "OBJECT_ID_CHANGE"},
	{0x00100000, "REPARSE_POINT_CHANGE"},
	{0x00200000, "STREAM_CHANGE"},
	{0x00400000, "TRANSACTED_CHANGE"},
	{0x00800000, "INTEGRITY_CHANGE"},
	{0x80000000, "CLOSE"},
}

var source_info_names = []bitName{
	{0x00000001, "DATA_MANAGEMENT"},
	{0x00000002, "AUXILIARY_DATA"},
	{0x00000004, "REPLICATION_MANAGEMENT"},
	{0x00000008, "CLIENT_REPLICATION_MANAGEMENT"},
}

var file_attribute_names = []bitName{
	{0x00000001, "READONLY"},
	{0x00000002, "HIDDEN"},
	{0x00000004, "SYSTEM"},
	{0x00000010, "DIRECTORY"},
	{0x00000020, "ARCHIVE"},
	{0x00000040, "DEVICE"},
	{0x00000080, "NORMAL"},
	{0x00000100, "TEMPORARY"},
	{0x00000200, "SPARSE_FILE"},
	{0x00000400, "REPARSE_POINT"},
	{0x00000800, "COMPRESSED"},
	{0x00001000, "OFFLINE"},
	{0x00002000, "NOT_CONTENT_INDEXED"},
	{0x00004000, "ENCRYPTED"},
	{0x00008000, "INTEGRITY_STREAM"},
	{0x00010000, "VIRTUAL"},
	{0x00020000, "NO_SCRUB_DATA"},
	{0x00040000, "EA"},
	{0x00080000, "PINNED"},
	{0x00100000, "UNPINNED"},
	{0x00400000, "RECALL_ON_DATA_ACCESS"},
}

var file_record_flag_names = []bitName{
	{0x0001, "ALLOCATED"},
	{0x0002, "DIRECTORY"},
	{0x0004, "EXTENSION"},
	{0x0008, "SPECIAL_INDEX"},
}

var attribute_flag_names = []bitName{
	{0x0001, "COMPRESSED"},
	{0x4000, "ENCRYPTED"},
	{0x8000, "SPARSE"},
}

func ReasonFlags(value uint32) Flags {
	return makeFlags(uint64(value), reason_names)
}

func SourceInfoFlags(value uint32) Flags {
	return makeFlags(uint64(value), source_info_names)
}

func FileAttributeFlags(value uint32) Flags {
	return makeFlags(uint64(value), file_attribute_names)
}

func FileRecordFlags(value uint16) Flags {
	return makeFlags(uint64(value), file_record_flag_names)
}

func AttributeFlags(value uint16) Flags {
	return makeFlags(uint64(value), attribute_flag_names)
}

const (
	ATTR_TYPE_STANDARD_INFORMATION  = 0x10
	ATTR_TYPE_ATTRIBUTE_LIST        = 0x20
	ATTR_TYPE_FILE_NAME             = 0x30
	ATTR_TYPE_OBJECT_ID             = 0x40
	ATTR_TYPE_SECURITY_DESCRIPTOR   = 0x50
	ATTR_TYPE_VOLUME_NAME           = 0x60
	ATTR_TYPE_VOLUME_INFORMATION    = 0x70
	ATTR_TYPE_DATA                  = 0x80
	ATTR_TYPE_INDEX_ROOT            = 0x90
	ATTR_TYPE_INDEX_ALLOCATION      = 0xA0
	ATTR_TYPE_BITMAP                = 0xB0
	ATTR_TYPE_REPARSE_POINT         = 0xC0
	ATTR_TYPE_EA_INFORMATION        = 0xD0
	ATTR_TYPE_EA                    = 0xE0
	ATTR_TYPE_PROPERTY_SET          = 0xF0
	ATTR_TYPE_LOGGED_UTILITY_STREAM = 0x100

	// Terminates the attribute list of a file record.
	ATTR_TYPE_END_OF_RECORD = 0xFFFFFFFF
)

func AttributeTypeName(value uint32) string {
	switch value {
	case ATTR_TYPE_STANDARD_INFORMATION:
		return "$STANDARD_INFORMATION"
	case ATTR_TYPE_ATTRIBUTE_LIST:
		return "$ATTRIBUTE_LIST"
	case ATTR_TYPE_FILE_NAME:
		return "$FILE_NAME"
	case ATTR_TYPE_OBJECT_ID:
		return "$OBJECT_ID"
	case ATTR_TYPE_SECURITY_DESCRIPTOR:
		return "$SECURITY_DESCRIPTOR"
	case ATTR_TYPE_VOLUME_NAME:
		return "$VOLUME_NAME"
	case ATTR_TYPE_VOLUME_INFORMATION:
		return "$VOLUME_INFORMATION"
	case ATTR_TYPE_DATA:
		return "$DATA"
	case ATTR_TYPE_INDEX_ROOT:
		return "$INDEX_ROOT"
	case ATTR_TYPE_INDEX_ALLOCATION:
		return "$INDEX_ALLOCATION"
	case ATTR_TYPE_BITMAP:
		return "$BITMAP"
	case ATTR_TYPE_REPARSE_POINT:
		return "$REPARSE_POINT"
	case ATTR_TYPE_EA_INFORMATION:
		return "$EA_INFORMATION"
	case ATTR_TYPE_EA:
		return "$EA"
	case ATTR_TYPE_PROPERTY_SET:
		return "$PROPERTY_SET"
	case ATTR_TYPE_LOGGED_UTILITY_STREAM:
		return "$LOGGED_UTILITY_STREAM"
	case ATTR_TYPE_END_OF_RECORD:
		return "$END"
	}
	return "Unknown"
}
