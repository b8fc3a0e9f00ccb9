package parser

import (
	"github.com/pkg/errors"
)

const (
	MFT_FILE_RECORD_MAGIC = "FILE"

	// Update sequence arrays protect the last two bytes of each
	// sector.
	FIXUP_SECTOR_SIZE = 512
)

// MFT_FILE_RECORD is a validated view of a single MFT record. Raw is
// truncated to the bytes in use.
type MFT_FILE_RECORD struct {
	*MFT_ENTRY

	Raw []byte
}

// ParseMFTFileRecord validates the record header. The record must
// already be fixed up (records from the file record control call are,
// records read from a raw $MFT need FixUpRecord()).
func ParseMFTFileRecord(record []byte) (*MFT_FILE_RECORD, error) {
	if len(record) < MFT_FILE_RECORD_HEADER_SIZE {
		return nil, malformed("MFT_FILE_RECORD", 0,
			"record length %#x shorter than the header", len(record))
	}

	header := NewMFT_ENTRY(record, 0)
	if header.Magic() != MFT_FILE_RECORD_MAGIC {
		return nil, malformed("MFT_FILE_RECORD", 0,
			"bad magic %q", header.Magic())
	}

	bytes_in_use := int(header.Mft_entry_size())
	if bytes_in_use < MFT_FILE_RECORD_HEADER_SIZE || bytes_in_use > len(record) {
		return nil, malformed("MFT_FILE_RECORD", 0,
			"bytes in use %#x outside record of length %#x",
			bytes_in_use, len(record))
	}

	attr_offset := int(header.Attribute_offset())
	if attr_offset < MFT_FILE_RECORD_HEADER_SIZE || attr_offset > bytes_in_use {
		return nil, malformed("MFT_FILE_RECORD", 0,
			"attribute offset %#x outside %#x bytes in use",
			attr_offset, bytes_in_use)
	}

	STATS.Inc_MFT_FILE_RECORD()
	raw := record[:bytes_in_use:bytes_in_use]
	return &MFT_FILE_RECORD{
		MFT_ENTRY: NewMFT_ENTRY(raw, 0),
		Raw:       raw,
	}, nil
}

// WalkAttributes visits every attribute up to the end of record
// marker. Reaching the end of the bytes in use without the marker is
// an error.
func (self *MFT_FILE_RECORD) WalkAttributes(
	visitor func(attr *NTFS_ATTRIBUTE) error) error {
	end := len(self.Raw)

	for offset := int(self.Attribute_offset()); ; {
		if offset+4 > end {
			return malformed("NTFS_ATTRIBUTE", int64(offset),
				"no end of record marker before %#x", end)
		}

		if getUint32(self.Raw, offset) == ATTR_TYPE_END_OF_RECORD {
			return nil
		}

		if offset+NTFS_ATTRIBUTE_HEADER_SIZE > end {
			return malformed("NTFS_ATTRIBUTE", int64(offset),
				"attribute header truncated at %#x", end)
		}

		length := int(getUint32(self.Raw, offset+4))
		if length < NTFS_ATTRIBUTE_HEADER_SIZE {
			return malformed("NTFS_ATTRIBUTE", int64(offset),
				"attribute length %#x is too small", length)
		}

		if length > end-offset {
			return malformed("NTFS_ATTRIBUTE", int64(offset),
				"attribute length %#x runs past %#x", length, end)
		}

		attr_end := offset + length
		attr := NewNTFS_ATTRIBUTE(self.Raw[offset:attr_end:attr_end],
			int64(offset))

		STATS.Inc_NTFS_ATTRIBUTE()
		err := visitor(attr)
		if err != nil {
			if errors.Is(err, ErrStopWalk) {
				return nil
			}
			return err
		}

		offset = attr_end
	}
}

// EnumerateAttributes lists the attributes of the record. They
// borrow the record.
func (self *MFT_FILE_RECORD) EnumerateAttributes() ([]*NTFS_ATTRIBUTE, error) {
	result := []*NTFS_ATTRIBUTE{}
	err := self.WalkAttributes(func(attr *NTFS_ATTRIBUTE) error {
		result = append(result, attr)
		return nil
	})
	return result, err
}

func (self *MFT_FILE_RECORD) StandardInformation() (*STANDARD_INFORMATION, error) {
	var result *STANDARD_INFORMATION

	err := self.WalkAttributes(func(attr *NTFS_ATTRIBUTE) error {
		if attr.Type().Value != ATTR_TYPE_STANDARD_INFORMATION {
			return nil
		}

		si, err := ParseStandardInformation(attr)
		if err != nil {
			return err
		}
		result = si
		return ErrStopWalk
	})
	if err != nil {
		return nil, err
	}

	if result == nil {
		return nil, errors.New("$STANDARD_INFORMATION not found")
	}
	return result, nil
}

// FileNames returns all the $FILE_NAME attributes, typically a long
// and a short (DOS) name. Non-resident or broken names are skipped.
func (self *MFT_FILE_RECORD) FileNames() []*FILE_NAME {
	result := []*FILE_NAME{}
	_ = self.WalkAttributes(func(attr *NTFS_ATTRIBUTE) error {
		if attr.Type().Value != ATTR_TYPE_FILE_NAME {
			return nil
		}

		fn, err := ParseFileName(attr)
		if err != nil {
			DebugPrint("FileNames: %v", err)
			return nil
		}
		result = append(result, fn)
		return nil
	})
	return result
}

// WalkMFTAttributes validates a record and visits its attributes.
func WalkMFTAttributes(record []byte, visitor func(attr *NTFS_ATTRIBUTE) error) error {
	mft_record, err := ParseMFTFileRecord(record)
	if err != nil {
		return err
	}
	return mft_record.WalkAttributes(visitor)
}

// FixUpRecord applies the update sequence array to a record read
// from disk, in place. Each protected sector must end with the
// update sequence number.
func FixUpRecord(record []byte) error {
	STATS.Inc_FixUpRecord()

	if len(record) < MFT_FILE_RECORD_HEADER_SIZE {
		return malformed("MFT_FILE_RECORD", 0,
			"record length %#x shorter than the header", len(record))
	}

	header := NewMFT_ENTRY(record, 0)

	// The fixup table is an array of 2 byte values. The first
	// value is the magic and the rest are fixup values.
	fixup_offset := int(header.Fixup_offset())
	fixup_count := int(header.Fixup_count())
	if fixup_count == 0 {
		return nil
	}

	fixup_end := fixup_offset + fixup_count*2
	if fixup_offset < MFT_FILE_RECORD_HEADER_SIZE-2 || fixup_end > len(record) {
		return malformed("MFT_FILE_RECORD", int64(fixup_offset),
			"fixup table of %v entries outside record", fixup_count)
	}

	// Copy the table since applying it may overwrite it.
	fixup_table := append([]byte{}, record[fixup_offset:fixup_end]...)
	fixup_magic := fixup_table[0:2]

	sector_idx := 0
	for idx := 2; idx < len(fixup_table); idx += 2 {
		offset := (sector_idx+1)*FIXUP_SECTOR_SIZE - 2
		if offset+1 >= len(record) ||
			record[offset] != fixup_magic[0] ||
			record[offset+1] != fixup_magic[1] {
			return malformed("MFT_FILE_RECORD", int64(offset),
				"fixup mismatch in sector %v", sector_idx)
		}

		// Apply the fixup
		record[offset] = fixup_table[idx]
		record[offset+1] = fixup_table[idx+1]
		sector_idx += 1
	}

	return nil
}
