package parser

import (
	"encoding/binary"
	"time"

	"github.com/stretchr/testify/mock"
)

// Builders for synthetic journal pages and MFT records.

var (
	testTime     = time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	testFileTime = ToFileTime(testTime)
)

func align8(v int) int {
	return (v + 7) &^ 7
}

// Names in tests are ASCII so each character is one code unit.
func testUTF16(name string) []byte {
	result := make([]byte, 0, len(name)*2)
	for _, c := range []byte(name) {
		result = append(result, c, 0)
	}
	return result
}

func put16(b []byte, offset int, v uint16) {
	binary.LittleEndian.PutUint16(b[offset:], v)
}

func put32(b []byte, offset int, v uint32) {
	binary.LittleEndian.PutUint32(b[offset:], v)
}

func put64(b []byte, offset int, v uint64) {
	binary.LittleEndian.PutUint64(b[offset:], v)
}

func testReference(id uint64, sequence uint16) uint64 {
	return id | uint64(sequence)<<48
}

type testUSNRecord struct {
	usn            int64
	frn, parent    uint64
	reason         uint32
	security_id    uint32
	file_attribute uint32
	name           string
}

func buildUSNRecordV2(r testUSNRecord) []byte {
	name := testUTF16(r.name)
	length := align8(USN_RECORD_V2_SIZE + len(name))

	result := make([]byte, length)
	put32(result, 0, uint32(length))
	put16(result, 4, 2)
	put64(result, 8, r.frn)
	put64(result, 16, r.parent)
	put64(result, 24, uint64(r.usn))
	put64(result, 32, uint64(testFileTime))
	put32(result, 40, r.reason)
	put32(result, 48, r.security_id)
	put32(result, 52, r.file_attribute)
	put16(result, 56, uint16(len(name)))
	put16(result, 58, USN_RECORD_V2_SIZE)
	copy(result[USN_RECORD_V2_SIZE:], name)
	return result
}

func buildUSNRecordV3(r testUSNRecord) []byte {
	name := testUTF16(r.name)
	length := align8(USN_RECORD_V3_SIZE + len(name))

	result := make([]byte, length)
	put32(result, 0, uint32(length))
	put16(result, 4, 3)
	put64(result, 8, r.frn)
	put64(result, 24, r.parent)
	put64(result, 40, uint64(r.usn))
	put64(result, 48, uint64(testFileTime))
	put32(result, 56, r.reason)
	put32(result, 64, r.security_id)
	put32(result, 68, r.file_attribute)
	put16(result, 72, uint16(len(name)))
	put16(result, 74, USN_RECORD_V3_SIZE)
	copy(result[USN_RECORD_V3_SIZE:], name)
	return result
}

func buildUSNRecordV4(r testUSNRecord, extents ...USN_RECORD_EXTENT) []byte {
	length := USN_RECORD_V4_SIZE + len(extents)*USN_RECORD_EXTENT_SIZE

	result := make([]byte, length)
	put32(result, 0, uint32(length))
	put16(result, 4, 4)
	put64(result, 8, r.frn)
	put64(result, 24, r.parent)
	put64(result, 40, uint64(r.usn))
	put32(result, 48, r.reason)
	put16(result, 60, uint16(len(extents)))
	put16(result, 62, USN_RECORD_EXTENT_SIZE)
	for i, extent := range extents {
		offset := USN_RECORD_V4_SIZE + i*USN_RECORD_EXTENT_SIZE
		put64(result, offset, uint64(extent.Offset))
		put64(result, offset+8, uint64(extent.Length))
	}
	return result
}

// buildPage prefixes the records with the next usn.
func buildPage(next_usn int64, records ...[]byte) []byte {
	result := make([]byte, USN_PAGE_HEADER_SIZE)
	put64(result, 0, uint64(next_usn))
	for _, record := range records {
		result = append(result, record...)
	}
	return result
}

func concat(records ...[]byte) []byte {
	result := []byte{}
	for _, record := range records {
		result = append(result, record...)
	}
	return result
}

func buildResidentAttribute(attr_type uint32, id uint16, name string, value []byte) []byte {
	name_bytes := testUTF16(name)
	content_offset := align8(RESIDENT_ATTRIBUTE_SIZE + len(name_bytes))
	length := align8(content_offset + len(value))

	result := make([]byte, length)
	put32(result, 0, attr_type)
	put32(result, 4, uint32(length))
	result[9] = byte(len(name))
	put16(result, 10, RESIDENT_ATTRIBUTE_SIZE)
	put16(result, 14, id)
	put32(result, 16, uint32(len(value)))
	put16(result, 20, uint16(content_offset))
	copy(result[RESIDENT_ATTRIBUTE_SIZE:], name_bytes)
	copy(result[content_offset:], value)
	return result
}

func buildNonResidentAttribute(attr_type uint32, id uint16, name string, size uint64) []byte {
	name_bytes := testUTF16(name)
	runlist_offset := align8(NON_RESIDENT_ATTRIBUTE_SIZE + len(name_bytes))
	length := align8(runlist_offset + 1)

	result := make([]byte, length)
	put32(result, 0, attr_type)
	put32(result, 4, uint32(length))
	result[8] = 1
	result[9] = byte(len(name))
	put16(result, 10, NON_RESIDENT_ATTRIBUTE_SIZE)
	put16(result, 14, id)
	put16(result, 32, uint16(runlist_offset))
	put64(result, 40, (size+0xfff)&^0xfff)
	put64(result, 48, size)
	put64(result, 56, size)
	copy(result[NON_RESIDENT_ATTRIBUTE_SIZE:], name_bytes)
	return result
}

func buildStandardInformation(file_attributes uint32) []byte {
	result := make([]byte, STANDARD_INFORMATION_V3_SIZE)
	for i := 0; i < 4; i++ {
		put64(result, i*8, uint64(testFileTime))
	}
	put32(result, 32, file_attributes)
	put32(result, 52, 0x100)
	put64(result, 64, 0x1000)
	return result
}

func buildFileName(parent_id uint64, parent_sequence uint16,
	name string, name_type byte) []byte {
	name_bytes := testUTF16(name)
	result := make([]byte, FILE_NAME_SIZE+len(name_bytes))
	put64(result, 0, testReference(parent_id, parent_sequence))
	for i := 1; i < 5; i++ {
		put64(result, i*8, uint64(testFileTime))
	}
	result[64] = byte(len(name))
	result[65] = name_type
	copy(result[FILE_NAME_SIZE:], name_bytes)
	return result
}

const (
	testRecordSize       = 0x400
	testFixupOffset      = 48
	testAttributesOffset = 56
)

// buildMFTRecord lays out a record as returned by the file record
// call: fixups already applied.
func buildMFTRecord(record_number uint32, sequence uint16, flags uint16,
	attributes ...[]byte) []byte {
	record := make([]byte, testRecordSize)
	copy(record, MFT_FILE_RECORD_MAGIC)
	put16(record, 4, testFixupOffset)
	put16(record, 6, testRecordSize/FIXUP_SECTOR_SIZE+1)
	put64(record, 8, 0x2000)
	put16(record, 16, sequence)
	put16(record, 18, 1)
	put16(record, 20, testAttributesOffset)
	put16(record, 22, flags)

	offset := testAttributesOffset
	for _, attr := range attributes {
		copy(record[offset:], attr)
		offset += len(attr)
	}
	put32(record, offset, ATTR_TYPE_END_OF_RECORD)
	offset += 8

	put32(record, 24, uint32(offset))
	put32(record, 28, testRecordSize)
	put16(record, 40, uint16(len(attributes)))
	put32(record, 44, record_number)
	return record
}

// protectRecord simulates writing the record to disk: the last two
// bytes of each sector move into the fixup table and are replaced by
// the update sequence number.
func protectRecord(record []byte, update_sequence uint16) {
	put16(record, testFixupOffset, update_sequence)
	for i := 0; i < testRecordSize/FIXUP_SECTOR_SIZE; i++ {
		sector_end := (i+1)*FIXUP_SECTOR_SIZE - 2
		copy(record[testFixupOffset+2+i*2:], record[sector_end:sector_end+2])
		put16(record, sector_end, update_sequence)
	}
}

// A directory and file tree used by several tests:
//
//	5  <root>
//	30 Users      (sequence 3, parent 5)
//	40 file.txt   (sequence 2, parent 30)
const (
	testUsersId       = 30
	testUsersSequence = 3
	testFileId        = 40
	testFileSequence  = 2
)

func buildTestMFT() []byte {
	mft := make([]byte, (testFileId+1)*testRecordSize)

	add := func(id int, record []byte) {
		protectRecord(record, 0x0102)
		copy(mft[id*testRecordSize:], record)
	}

	add(ROOT_MFT_ID, buildMFTRecord(ROOT_MFT_ID, 5, 0x3,
		buildResidentAttribute(ATTR_TYPE_STANDARD_INFORMATION, 0, "",
			buildStandardInformation(0x6)),
		buildResidentAttribute(ATTR_TYPE_FILE_NAME, 1, "",
			buildFileName(ROOT_MFT_ID, 5, ".", 3))))

	add(testUsersId, buildMFTRecord(testUsersId, testUsersSequence, 0x3,
		buildResidentAttribute(ATTR_TYPE_STANDARD_INFORMATION, 0, "",
			buildStandardInformation(0x10)),
		buildResidentAttribute(ATTR_TYPE_FILE_NAME, 1, "",
			buildFileName(ROOT_MFT_ID, 5, "Users", 3))))

	add(testFileId, buildMFTRecord(testFileId, testFileSequence, 0x1,
		buildResidentAttribute(ATTR_TYPE_STANDARD_INFORMATION, 0, "",
			buildStandardInformation(0x20)),
		buildResidentAttribute(ATTR_TYPE_FILE_NAME, 1, "",
			buildFileName(testUsersId, testUsersSequence, "file.txt", 1)),
		buildResidentAttribute(ATTR_TYPE_FILE_NAME, 2, "",
			buildFileName(testUsersId, testUsersSequence, "FILE~1.TXT", 2)),
		buildResidentAttribute(ATTR_TYPE_DATA, 3, "", []byte("hello"))))

	return mft
}

// buildTestJournal lays out a $J: a sparse (zero) prefix, three
// records, a sparse gap and a final record. The usn of each record
// is its offset.
func buildTestJournal() ([]byte, []int64) {
	journal := make([]byte, 0x2000)
	usns := []int64{}

	offset := 0x1000
	add := func(record []byte) {
		put64(record, 24, uint64(offset))
		journal = append(journal[:offset], record...)
		usns = append(usns, int64(offset))
		offset += len(record)
	}

	file_ref := testReference(testFileId, testFileSequence)
	parent_ref := testReference(testUsersId, testUsersSequence)

	add(buildUSNRecordV2(testUSNRecord{
		frn: file_ref, parent: parent_ref, reason: 0x100, name: "file.txt"}))
	add(buildUSNRecordV2(testUSNRecord{
		frn: file_ref, parent: parent_ref, reason: 0x2, name: "file.txt"}))
	add(buildUSNRecordV2(testUSNRecord{
		frn: file_ref, parent: parent_ref, reason: 0x80000002, name: "file.txt"}))

	// Sparse gap up to the next cluster.
	journal = append(journal, make([]byte, 0x1800-len(journal))...)
	offset = 0x1800
	add(buildUSNRecordV2(testUSNRecord{
		frn: file_ref, parent: parent_ref, reason: 0x200, name: "file.txt"}))

	return journal, usns
}

// MockSession is a scripted Session.
type MockSession struct {
	mock.Mock
}

func (self *MockSession) QueryJournal() (*JournalDescriptor, error) {
	args := self.Called()
	descriptor, _ := args.Get(0).(*JournalDescriptor)
	return descriptor, args.Error(1)
}

func (self *MockSession) CreateJournal(max_size, allocation_delta uint64) error {
	return self.Called(max_size, allocation_delta).Error(0)
}

func (self *MockSession) DeleteJournal(journal_id uint64) error {
	return self.Called(journal_id).Error(0)
}

// The first return value is the page copied into the buffer.
func (self *MockSession) ReadJournalPage(journal_id uint64, start_usn int64,
	reason_mask uint32, buffer *Buffer) (int, error) {
	args := self.Called(journal_id, start_usn, reason_mask)
	return fillFromMock(args, buffer)
}

func (self *MockSession) GetMFTRecord(
	file_reference_number uint64, buffer *Buffer) (int, error) {
	args := self.Called(file_reference_number)
	return fillFromMock(args, buffer)
}

func (self *MockSession) GetVolumeData(buffer *Buffer) (int, error) {
	args := self.Called()
	return fillFromMock(args, buffer)
}

func (self *MockSession) Close() error {
	return self.Called().Error(0)
}

func fillFromMock(args mock.Arguments, buffer *Buffer) (int, error) {
	err := args.Error(1)
	data, _ := args.Get(0).([]byte)
	if err != nil || len(data) == 0 {
		return 0, err
	}

	err = buffer.CopyIn(0, data)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}
