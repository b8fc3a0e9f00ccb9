package parser

import (
	"encoding/binary"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

var (
	utf16_decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// ParseUTF16String decodes a counted UTF-16LE run. The run is not
// expected to be null terminated but any embedded terminator ends the
// string.
func ParseUTF16String(data []byte) string {
	// A dangling odd byte can not form a code unit.
	data = data[:len(data)&^1]
	if len(data) == 0 {
		return ""
	}

	decoded, err := utf16_decoder.NewDecoder().Bytes(data)
	if err != nil {
		return ""
	}

	result := string(decoded)
	idx := strings.IndexByte(result, 0)
	if idx >= 0 {
		return result[:idx]
	}
	return result
}

// Bounds checked little endian accessors. The caller has already
// verified the record is large enough, these only protect against
// programming errors and return 0 out of range.
func getUint16(data []byte, offset int) uint16 {
	if offset < 0 || offset+2 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint16(data[offset : offset+2])
}

func getUint32(data []byte, offset int) uint32 {
	if offset < 0 || offset+4 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint32(data[offset : offset+4])
}

func getUint64(data []byte, offset int) uint64 {
	if offset < 0 || offset+8 > len(data) {
		return 0
	}
	return binary.LittleEndian.Uint64(data[offset : offset+8])
}

func getInt64(data []byte, offset int) int64 {
	return int64(getUint64(data, offset))
}

func putInt64(data []byte, offset int, value int64) {
	if offset < 0 || offset+8 > len(data) {
		return
	}
	binary.LittleEndian.PutUint64(data[offset:offset+8], uint64(value))
}

func CapUint64(v uint64, max uint64) uint64 {
	if v > max {
		return max
	}
	return v
}

func CapInt(v int, max int) int {
	if v > max {
		return max
	}
	return v
}

func CapInt64(v int64, max int64) int64 {
	if v > max {
		return max
	}
	return v
}
