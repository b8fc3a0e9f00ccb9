package parser

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Filesystem control codes from winioctl.h
const (
	FSCTL_GET_NTFS_VOLUME_DATA = 0x00090064
	FSCTL_GET_NTFS_FILE_RECORD = 0x00090068
	FSCTL_READ_USN_JOURNAL     = 0x000900BB
	FSCTL_CREATE_USN_JOURNAL   = 0x000900E7
	FSCTL_QUERY_USN_JOURNAL    = 0x000900F4
	FSCTL_DELETE_USN_JOURNAL   = 0x000900F8

	USN_DELETE_FLAG_DELETE = 0x00000001
	USN_DELETE_FLAG_NOTIFY = 0x00000002
)

const (
	USN_JOURNAL_DATA_V0_SIZE = 56
	USN_JOURNAL_DATA_V1_SIZE = 60
	USN_JOURNAL_DATA_V2_SIZE = 80

	READ_USN_JOURNAL_DATA_V0_SIZE = 40
	READ_USN_JOURNAL_DATA_V1_SIZE = 48

	CREATE_USN_JOURNAL_DATA_SIZE = 16
	DELETE_USN_JOURNAL_DATA_SIZE = 16

	NTFS_VOLUME_DATA_BUFFER_SIZE   = 96
	NTFS_EXTENDED_VOLUME_DATA_SIZE = 32

	// FileReferenceNumber and FileRecordLength precede the record.
	NTFS_FILE_RECORD_OUTPUT_HEADER_SIZE = 12

	// Every journal page starts with the usn to continue from.
	USN_PAGE_HEADER_SIZE = 8
)

// A Session issues the raw control requests against one volume. All
// calls block. The caller owns the buffers, a session never keeps a
// reference to them after returning.
type Session interface {
	QueryJournal() (*JournalDescriptor, error)
	CreateJournal(max_size, allocation_delta uint64) error
	DeleteJournal(journal_id uint64) error

	// ReadJournalPage fills buffer with one journal page: the next
	// usn followed by whole records. It returns the number of bytes
	// written. The end of the journal is ErrNoMoreItems.
	ReadJournalPage(journal_id uint64, start_usn int64,
		reason_mask uint32, buffer *Buffer) (int, error)

	// GetMFTRecord fills buffer with an NTFS_FILE_RECORD_OUTPUT_BUFFER
	// for the closest in-use record at or below the requested one.
	GetMFTRecord(file_reference_number uint64, buffer *Buffer) (int, error)

	// GetVolumeData fills buffer with an NTFS_VOLUME_DATA_BUFFER.
	GetVolumeData(buffer *Buffer) (int, error)

	Close() error
}

// JournalDescriptor is a snapshot of the journal state. It is stale
// as soon as the journal is created or deleted.
type JournalDescriptor struct {
	JournalID       uint64
	FirstUsn        int64
	NextUsn         int64
	LowestValidUsn  int64
	MaxUsn          int64
	MaxSize         uint64
	AllocationDelta uint64

	// Only reported by USN_JOURNAL_DATA_V1 and later, otherwise 0.
	MinSupportedMajorVersion uint16
	MaxSupportedMajorVersion uint16
}

func ParseJournalDescriptor(data []byte) (*JournalDescriptor, error) {
	if len(data) < USN_JOURNAL_DATA_V0_SIZE {
		return nil, malformed("USN_JOURNAL_DATA", 0,
			"short journal data (%v bytes)", len(data))
	}

	result := &JournalDescriptor{
		JournalID:       getUint64(data, 0),
		FirstUsn:        getInt64(data, 8),
		NextUsn:         getInt64(data, 16),
		LowestValidUsn:  getInt64(data, 24),
		MaxUsn:          getInt64(data, 32),
		MaxSize:         getUint64(data, 40),
		AllocationDelta: getUint64(data, 48),
	}

	if len(data) >= USN_JOURNAL_DATA_V1_SIZE {
		result.MinSupportedMajorVersion = getUint16(data, 56)
		result.MaxSupportedMajorVersion = getUint16(data, 58)
	}

	return result, nil
}

// Encode produces the USN_JOURNAL_DATA_V1 layout.
func (self *JournalDescriptor) Encode() []byte {
	result := make([]byte, USN_JOURNAL_DATA_V1_SIZE)
	binary.LittleEndian.PutUint64(result[0:], self.JournalID)
	binary.LittleEndian.PutUint64(result[8:], uint64(self.FirstUsn))
	binary.LittleEndian.PutUint64(result[16:], uint64(self.NextUsn))
	binary.LittleEndian.PutUint64(result[24:], uint64(self.LowestValidUsn))
	binary.LittleEndian.PutUint64(result[32:], uint64(self.MaxUsn))
	binary.LittleEndian.PutUint64(result[40:], self.MaxSize)
	binary.LittleEndian.PutUint64(result[48:], self.AllocationDelta)
	binary.LittleEndian.PutUint16(result[56:], self.MinSupportedMajorVersion)
	binary.LittleEndian.PutUint16(result[58:], self.MaxSupportedMajorVersion)
	return result
}

func (self *JournalDescriptor) DebugString() string {
	result := "struct JournalDescriptor:\n"
	result += fmt.Sprintf("  JournalID: %#0x\n", self.JournalID)
	result += fmt.Sprintf("  FirstUsn: %#0x\n", self.FirstUsn)
	result += fmt.Sprintf("  NextUsn: %#0x\n", self.NextUsn)
	result += fmt.Sprintf("  LowestValidUsn: %#0x\n", self.LowestValidUsn)
	result += fmt.Sprintf("  MaxUsn: %#0x\n", self.MaxUsn)
	result += fmt.Sprintf("  MaxSize: %#0x\n", self.MaxSize)
	result += fmt.Sprintf("  AllocationDelta: %#0x\n", self.AllocationDelta)
	return result
}

// VolumeData is the decoded NTFS_VOLUME_DATA_BUFFER.
type VolumeData struct {
	VolumeSerialNumber           uint64
	NumberSectors                int64
	TotalClusters                int64
	FreeClusters                 int64
	TotalReserved                int64
	BytesPerSector               uint32
	BytesPerCluster              uint32
	BytesPerFileRecordSegment    uint32
	ClustersPerFileRecordSegment uint32
	MftValidDataLength           int64
	MftStartLcn                  int64
	Mft2StartLcn                 int64
	MftZoneStart                 int64
	MftZoneEnd                   int64

	// From the extended data when present.
	NtfsMajorVersion uint16
	NtfsMinorVersion uint16
}

func ParseVolumeData(data []byte) (*VolumeData, error) {
	if len(data) < NTFS_VOLUME_DATA_BUFFER_SIZE {
		return nil, malformed("NTFS_VOLUME_DATA_BUFFER", 0,
			"short volume data (%v bytes)", len(data))
	}

	result := &VolumeData{
		VolumeSerialNumber:           getUint64(data, 0),
		NumberSectors:                getInt64(data, 8),
		TotalClusters:                getInt64(data, 16),
		FreeClusters:                 getInt64(data, 24),
		TotalReserved:                getInt64(data, 32),
		BytesPerSector:               getUint32(data, 40),
		BytesPerCluster:              getUint32(data, 44),
		BytesPerFileRecordSegment:    getUint32(data, 48),
		ClustersPerFileRecordSegment: getUint32(data, 52),
		MftValidDataLength:           getInt64(data, 56),
		MftStartLcn:                  getInt64(data, 64),
		Mft2StartLcn:                 getInt64(data, 72),
		MftZoneStart:                 getInt64(data, 80),
		MftZoneEnd:                   getInt64(data, 88),
	}

	// NTFS_EXTENDED_VOLUME_DATA: ByteCount, MajorVersion, MinorVersion
	if len(data) >= NTFS_VOLUME_DATA_BUFFER_SIZE+8 {
		result.NtfsMajorVersion = getUint16(data, 100)
		result.NtfsMinorVersion = getUint16(data, 102)
	}

	return result, nil
}

func (self *VolumeData) Encode() []byte {
	result := make([]byte, NTFS_VOLUME_DATA_BUFFER_SIZE+NTFS_EXTENDED_VOLUME_DATA_SIZE)
	binary.LittleEndian.PutUint64(result[0:], self.VolumeSerialNumber)
	binary.LittleEndian.PutUint64(result[8:], uint64(self.NumberSectors))
	binary.LittleEndian.PutUint64(result[16:], uint64(self.TotalClusters))
	binary.LittleEndian.PutUint64(result[24:], uint64(self.FreeClusters))
	binary.LittleEndian.PutUint64(result[32:], uint64(self.TotalReserved))
	binary.LittleEndian.PutUint32(result[40:], self.BytesPerSector)
	binary.LittleEndian.PutUint32(result[44:], self.BytesPerCluster)
	binary.LittleEndian.PutUint32(result[48:], self.BytesPerFileRecordSegment)
	binary.LittleEndian.PutUint32(result[52:], self.ClustersPerFileRecordSegment)
	binary.LittleEndian.PutUint64(result[56:], uint64(self.MftValidDataLength))
	binary.LittleEndian.PutUint64(result[64:], uint64(self.MftStartLcn))
	binary.LittleEndian.PutUint64(result[72:], uint64(self.Mft2StartLcn))
	binary.LittleEndian.PutUint64(result[80:], uint64(self.MftZoneStart))
	binary.LittleEndian.PutUint64(result[88:], uint64(self.MftZoneEnd))
	binary.LittleEndian.PutUint32(result[96:], NTFS_EXTENDED_VOLUME_DATA_SIZE)
	binary.LittleEndian.PutUint16(result[100:], self.NtfsMajorVersion)
	binary.LittleEndian.PutUint16(result[102:], self.NtfsMinorVersion)
	return result
}

// FileCount is the number of records the MFT can currently hold.
func (self *VolumeData) FileCount() (uint64, error) {
	if self.BytesPerFileRecordSegment == 0 {
		return 0, ErrInvalidVolumeData
	}
	return uint64(self.MftValidDataLength) /
		uint64(self.BytesPerFileRecordSegment), nil
}

// Request layouts for the journal control calls.

func encodeReadJournalRequest(start_usn int64, reason_mask uint32,
	journal_id uint64, min_version, max_version uint16) []byte {
	size := READ_USN_JOURNAL_DATA_V0_SIZE
	if max_version > 0 {
		size = READ_USN_JOURNAL_DATA_V1_SIZE
	}

	// ReturnOnlyOnClose, Timeout and BytesToWaitFor are 0 so reads
	// never block waiting for new records.
	result := make([]byte, size)
	binary.LittleEndian.PutUint64(result[0:], uint64(start_usn))
	binary.LittleEndian.PutUint32(result[8:], reason_mask)
	binary.LittleEndian.PutUint64(result[32:], journal_id)
	if max_version > 0 {
		binary.LittleEndian.PutUint16(result[40:], min_version)
		binary.LittleEndian.PutUint16(result[42:], max_version)
	}
	return result
}

func encodeCreateJournalRequest(max_size, allocation_delta uint64) []byte {
	result := make([]byte, CREATE_USN_JOURNAL_DATA_SIZE)
	binary.LittleEndian.PutUint64(result[0:], max_size)
	binary.LittleEndian.PutUint64(result[8:], allocation_delta)
	return result
}

func encodeDeleteJournalRequest(journal_id uint64, flags uint32) []byte {
	result := make([]byte, DELETE_USN_JOURNAL_DATA_SIZE)
	binary.LittleEndian.PutUint64(result[0:], journal_id)
	binary.LittleEndian.PutUint32(result[8:], flags)
	return result
}

func encodeFileRecordRequest(file_reference_number uint64) []byte {
	result := make([]byte, 8)
	binary.LittleEndian.PutUint64(result, file_reference_number)
	return result
}

// EncodeFileRecordOutput builds an NTFS_FILE_RECORD_OUTPUT_BUFFER
// around a record.
func EncodeFileRecordOutput(file_reference_number uint64, record []byte) []byte {
	result := make([]byte, NTFS_FILE_RECORD_OUTPUT_HEADER_SIZE+len(record))
	binary.LittleEndian.PutUint64(result[0:], file_reference_number)
	binary.LittleEndian.PutUint32(result[8:], uint32(len(record)))
	copy(result[NTFS_FILE_RECORD_OUTPUT_HEADER_SIZE:], record)
	return result
}

// ParseFileRecordOutput strips the NTFS_FILE_RECORD_OUTPUT_BUFFER
// header. The record borrows data.
func ParseFileRecordOutput(data []byte) (uint64, []byte, error) {
	if len(data) < NTFS_FILE_RECORD_OUTPUT_HEADER_SIZE {
		return 0, nil, malformed("NTFS_FILE_RECORD_OUTPUT_BUFFER", 0,
			"short output (%v bytes)", len(data))
	}

	file_reference_number := getUint64(data, 0)
	length := int(getUint32(data, 8))
	end := NTFS_FILE_RECORD_OUTPUT_HEADER_SIZE + length
	if length == 0 || end > len(data) {
		return 0, nil, malformed("NTFS_FILE_RECORD_OUTPUT_BUFFER", 8,
			"record length %#x exceeds output of %#x bytes",
			length, len(data))
	}

	return file_reference_number,
		data[NTFS_FILE_RECORD_OUTPUT_HEADER_SIZE:end:end], nil
}

// SharedSession lets several owners hold the same session. The
// underlying session is closed when the last owner closes.
type SharedSession struct {
	Session

	state  *sharedState
	closed bool
}

type sharedState struct {
	mu   sync.Mutex
	refs int
}

func NewSharedSession(session Session) *SharedSession {
	// Already shared - just take another reference.
	shared, ok := session.(*SharedSession)
	if ok {
		return shared.Dup()
	}

	return &SharedSession{
		Session: session,
		state:   &sharedState{refs: 1},
	}
}

// Dup takes another reference. Duplicating an owner which was
// already closed gives an owner whose calls all fail with
// ErrSessionClosed.
func (self *SharedSession) Dup() *SharedSession {
	self.state.mu.Lock()
	defer self.state.mu.Unlock()

	if self.closed || self.state.refs <= 0 {
		return &SharedSession{
			Session: closedSession{},
			state:   &sharedState{},
			closed:  true,
		}
	}

	self.state.refs++
	return &SharedSession{
		Session: self.Session,
		state:   self.state,
	}
}

// Refs is the number of open owners.
func (self *SharedSession) Refs() int {
	self.state.mu.Lock()
	defer self.state.mu.Unlock()

	return self.state.refs
}

// Close releases this owner. Closing the same owner twice is a no-op.
func (self *SharedSession) Close() error {
	self.state.mu.Lock()
	defer self.state.mu.Unlock()

	if self.closed {
		return nil
	}
	self.closed = true

	self.state.refs--
	if self.state.refs > 0 {
		return nil
	}
	return self.Session.Close()
}

// closedSession stands in for a session whose last owner is gone.
type closedSession struct{}

func (self closedSession) QueryJournal() (*JournalDescriptor, error) {
	return nil, ErrSessionClosed
}

func (self closedSession) CreateJournal(max_size, allocation_delta uint64) error {
	return ErrSessionClosed
}

func (self closedSession) DeleteJournal(journal_id uint64) error {
	return ErrSessionClosed
}

func (self closedSession) ReadJournalPage(journal_id uint64, start_usn int64,
	reason_mask uint32, buffer *Buffer) (int, error) {
	return 0, ErrSessionClosed
}

func (self closedSession) GetMFTRecord(
	file_reference_number uint64, buffer *Buffer) (int, error) {
	return 0, ErrSessionClosed
}

func (self closedSession) GetVolumeData(buffer *Buffer) (int, error) {
	return 0, ErrSessionClosed
}

func (self closedSession) Close() error {
	return nil
}
