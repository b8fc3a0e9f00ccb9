package parser

import (
	"testing"

	"github.com/alecthomas/assert"
	"github.com/pkg/errors"
)

func TestSharedSessionClosesOnce(t *testing.T) {
	session := &MockSession{}
	session.On("Close").Return(nil).Once()

	first := NewSharedSession(session)
	second := first.Dup()
	third := NewSharedSession(second)
	assert.Equal(t, 3, first.Refs())

	assert.NoError(t, first.Close())
	assert.NoError(t, first.Close())
	assert.NoError(t, second.Close())
	session.AssertNotCalled(t, "Close")
	assert.Equal(t, 1, third.Refs())

	assert.NoError(t, third.Close())
	session.AssertNumberOfCalls(t, "Close", 1)
}

func TestDupAfterCloseGivesClosedOwner(t *testing.T) {
	session := &MockSession{}
	session.On("Close").Return(nil).Once()

	first := NewSharedSession(session)
	second := first.Dup()

	// A closed owner can not hand out new references while the
	// session is still open.
	assert.NoError(t, first.Close())
	stale := first.Dup()
	assert.Equal(t, 1, second.Refs())
	assert.Equal(t, 0, stale.Refs())

	// Closing the last owner closes the session. Duplicating it
	// afterwards must not resurrect the reference count.
	assert.NoError(t, second.Close())
	revived := second.Dup()
	assert.Equal(t, 0, second.Refs())
	assert.Equal(t, 0, revived.Refs())

	_, err := revived.QueryJournal()
	assert.True(t, errors.Is(err, ErrSessionClosed))

	buffer, err := NewBuffer(0x100)
	assert.NoError(t, err)
	_, err = revived.ReadJournalPage(1, 0, USN_REASON_ALL, buffer)
	assert.True(t, errors.Is(err, ErrSessionClosed))

	assert.NoError(t, revived.Close())
	assert.NoError(t, stale.Close())
	session.AssertNumberOfCalls(t, "Close", 1)
}

func TestContextCopySharesSession(t *testing.T) {
	session := &MockSession{}
	session.On("Close").Return(nil).Once()

	ntfs_ctx, err := GetNTFSContext(session, GetDefaultOptions())
	assert.NoError(t, err)

	ctx_copy := ntfs_ctx.Copy()
	assert.NoError(t, ntfs_ctx.Close())
	session.AssertNotCalled(t, "Close")

	assert.NoError(t, ctx_copy.Close())
	session.AssertNumberOfCalls(t, "Close", 1)
}

func TestJournalDescriptorIsCached(t *testing.T) {
	session := &MockSession{}
	session.On("QueryJournal").Return(testDescriptor(), nil).Twice()
	session.On("CreateJournal", uint64(0x1000), uint64(0x100)).Return(nil).Once()

	ntfs_ctx, err := GetNTFSContext(session, GetDefaultOptions())
	assert.NoError(t, err)

	for i := 0; i < 3; i++ {
		descriptor, err := ntfs_ctx.QueryJournal()
		assert.NoError(t, err)
		assert.Equal(t, testJournalID, descriptor.JournalID)

		// Callers get a copy.
		descriptor.JournalID = 0
	}
	session.AssertNumberOfCalls(t, "QueryJournal", 1)

	// Administrative calls invalidate the descriptor.
	assert.NoError(t, ntfs_ctx.CreateJournal(0x1000, 0x100))
	_, err = ntfs_ctx.QueryJournal()
	assert.NoError(t, err)
	session.AssertNumberOfCalls(t, "QueryJournal", 2)
}

func TestParseJournalDescriptor(t *testing.T) {
	descriptor := testDescriptor()
	descriptor.MinSupportedMajorVersion = 2
	descriptor.MaxSupportedMajorVersion = 4

	parsed, err := ParseJournalDescriptor(descriptor.Encode())
	assert.NoError(t, err)
	assert.Equal(t, descriptor, parsed)

	// The V0 layout has no version range.
	parsed, err = ParseJournalDescriptor(descriptor.Encode()[:USN_JOURNAL_DATA_V0_SIZE])
	assert.NoError(t, err)
	assert.Equal(t, uint16(0), parsed.MaxSupportedMajorVersion)

	_, err = ParseJournalDescriptor(make([]byte, 8))
	assert.True(t, errors.Is(err, ErrMalformedRecord))
}

func TestVolumeDataFileCount(t *testing.T) {
	volume_data := &VolumeData{
		BytesPerFileRecordSegment: 0x400,
		MftValidDataLength:        0x100000,
	}

	parsed, err := ParseVolumeData(volume_data.Encode())
	assert.NoError(t, err)

	count, err := parsed.FileCount()
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x400), count)

	parsed.BytesPerFileRecordSegment = 0
	_, err = parsed.FileCount()
	assert.True(t, errors.Is(err, ErrInvalidVolumeData))
}

func TestFileRecordOutput(t *testing.T) {
	record := buildTestFileRecord()
	output := EncodeFileRecordOutput(testFileId, record)

	frn, parsed, err := ParseFileRecordOutput(output)
	assert.NoError(t, err)
	assert.Equal(t, uint64(testFileId), frn)
	assert.Equal(t, record, parsed)

	// Length larger than the output.
	_, _, err = ParseFileRecordOutput(output[:len(output)-1])
	assert.True(t, errors.Is(err, ErrMalformedRecord))
}

func TestReadJournalRequestLayout(t *testing.T) {
	request := encodeReadJournalRequest(0x1000, USN_REASON_ALL, testJournalID, 2, 3)
	assert.Equal(t, READ_USN_JOURNAL_DATA_V1_SIZE, len(request))
	assert.Equal(t, int64(0x1000), getInt64(request, 0))
	assert.Equal(t, uint32(USN_REASON_ALL), getUint32(request, 8))
	assert.Equal(t, testJournalID, getUint64(request, 32))
	assert.Equal(t, uint16(3), getUint16(request, 42))

	// Without a version range the legacy layout is used.
	request = encodeReadJournalRequest(0x1000, USN_REASON_ALL, testJournalID, 0, 0)
	assert.Equal(t, READ_USN_JOURNAL_DATA_V0_SIZE, len(request))
}
